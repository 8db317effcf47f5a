package console

import (
	"context"
	"errors"
	"io"
	"net"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/paneflow/internal/eventbus"
	"pkt.systems/paneflow/internal/logx"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// Server exposes the read-only scheduler dashboard over SSH.
type Server struct {
	Addr        string
	HostKeyPath string
	Listener    net.Listener
	EventTail   int
	Source      StateSource
	EventBus    *eventbus.Bus
	AuthStore   LoginAuthStore
	Logger      pslog.Logger
}

// LoginAuthStore validates SSH login credentials.
type LoginAuthStore interface {
	HasLoginPubKey(operatorID schema.OperatorID, key ssh.PublicKey) (bool, error)
	ValidateTOTP(username string, totpCode string) error
}

type authContextKey string

const loginPubKeyOK authContextKey = "login-pubkey-ok"

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Logger == nil {
		s.Logger = pslog.Ctx(ctx)
	}
	if s.Source == nil {
		return errors.New("state source is required for the console")
	}
	if s.AuthStore == nil {
		return errors.New("auth store is required for SSH")
	}

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}

	server := &gliderssh.Server{
		Addr:                       s.Addr,
		Handler:                    s.handleSession,
		PublicKeyHandler:           s.handlePublicKey,
		KeyboardInteractiveHandler: s.handleKeyboardInteractive,
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.Logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	fingerprint := ssh.FingerprintSHA256(key)
	remote := remoteAddr(ctx)
	operatorID := schema.OperatorID(ctx.User())
	sshSession := ctx.SessionID()
	if operatorID == "" {
		log.Warn("ssh pubkey rejected", "reason", "missing operator", "remote", remote, "ssh_session", sshSession, "fingerprint", fingerprint)
		return false
	}
	log = log.With("operator", operatorID, "remote", remote, "fingerprint", fingerprint)
	if sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	ok, err := s.AuthStore.HasLoginPubKey(operatorID, key)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	if !ok {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	ctx.SetValue(loginPubKeyOK, true)
	log.Info("ssh pubkey accepted")
	return false
}

func (s *Server) handleKeyboardInteractive(ctx gliderssh.Context, challenger ssh.KeyboardInteractiveChallenge) bool {
	if ctx.Value(loginPubKeyOK) != true {
		return false
	}
	log := s.Logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	remote := remoteAddr(ctx)
	operatorID := schema.OperatorID(ctx.User())
	sshSession := ctx.SessionID()
	if operatorID != "" {
		log = log.With("operator", operatorID, "remote", remote)
		if sshSession != "" {
			log = log.With("ssh_session", sshSession)
		}
	}
	answers, err := challenger(ctx.User(), "", []string{"Verification code: "}, []bool{false})
	if err != nil {
		log.Warn("ssh totp rejected", "reason", "challenge failed", "err", err)
		return false
	}
	if len(answers) != 1 {
		log.Warn("ssh totp rejected", "reason", "invalid answer count", "count", len(answers))
		return false
	}
	if err := s.AuthStore.ValidateTOTP(ctx.User(), answers[0]); err != nil {
		log.Warn("ssh totp rejected", "reason", "invalid code", "err", err)
		return false
	}
	log.Info("ssh totp accepted")
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.Logger
	if log == nil {
		log = pslog.Ctx(sess.Context())
	}
	operatorID := schema.OperatorID(sess.User())
	if operatorID == "" {
		log.Info("ssh session rejected", "reason", "missing operator", "remote", sess.RemoteAddr().String())
		_, _ = io.WriteString(sess, "missing operator\n")
		return
	}
	remote := sess.RemoteAddr().String()
	sshSession := sess.Context().SessionID()
	log = log.With("operator", operatorID, "remote", remote)
	if sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	ctx := logx.ContextWithOperatorLogger(sess.Context(), log, operatorID)

	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		return
	}

	log.Info("ssh session opened", "term", pty.Term)
	ui := newDashboardSession(sess, s.Source, s.EventBus, s.EventTail, nil)
	ui.SetSize(pty.Window.Width, pty.Window.Height)
	_ = ui.Run(ctx, sess, winCh)
	log.Info("ssh session closed", "term", pty.Term)
}
