package main

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"pkt.systems/paneflow/internal/appconfig"
	"pkt.systems/paneflow/internal/opauth"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

const (
	defaultPasswordLength = 20
	totpIssuer            = "paneflow"
)

func newOperatorsCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "operators",
		Short: "Manage paneflow operators",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newOperatorsListCmd(&cfgPath))
	cmd.AddCommand(newOperatorsAddCmd(&cfgPath))
	cmd.AddCommand(newOperatorsDeleteCmd(&cfgPath))
	cmd.AddCommand(newOperatorsRotateTOTP(&cfgPath))
	cmd.AddCommand(newOperatorsChpasswd(&cfgPath))
	cmd.AddCommand(newOperatorsAddLoginPubKey(&cfgPath))
	cmd.AddCommand(newOperatorsListLoginPubKeys(&cfgPath))
	cmd.AddCommand(newOperatorsRemoveLoginPubKey(&cfgPath))

	return cmd
}

func openOperatorStore(cmd *cobra.Command, cfgPath string) (*opauth.Store, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger := pslog.Ctx(cmd.Context())
	return opauth.NewStoreWithLogger(cfg.Auth.OperatorFile, seedsFromConfig(cfg.Auth), logger)
}

func seedsFromConfig(cfg appconfig.AuthConfig) []opauth.Seed {
	if len(cfg.SeedOperators) == 0 {
		return nil
	}
	seeds := make([]opauth.Seed, 0, len(cfg.SeedOperators))
	for _, seed := range cfg.SeedOperators {
		seeds = append(seeds, opauth.Seed{
			Name:          seed.Name,
			PasswordHash:  seed.PasswordHash,
			TOTPSecret:    seed.TOTPSecret,
			AuthorizedKey: seed.AuthorizedKey,
		})
	}
	return seeds
}

func newOperatorsListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List operators",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openOperatorStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, op := range store.LoadOperators() {
				_, _ = fmt.Fprintln(out, op.Name)
			}
			return nil
		},
	}
}

func newOperatorsAddCmd(cfgPath *string) *cobra.Command {
	var passwordFromStdin bool
	var autoPassword bool
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validateOperatorName(name); err != nil {
				return err
			}
			password, generated, err := resolvePassword(cmd, passwordFromStdin, autoPassword)
			if err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			secret, url, err := generateTOTP(name)
			if err != nil {
				return err
			}
			store, err := openOperatorStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.AddOperator(opauth.Operator{
				Name:         name,
				PasswordHash: string(hash),
				TOTPSecret:   secret,
			}); err != nil {
				return err
			}
			printOperatorEnrollment(cmd.OutOrStdout(), name, password, generated, secret, url)
			return nil
		},
	}
	cmd.Flags().BoolVar(&passwordFromStdin, "password-from-stdin", false, "read password from stdin")
	cmd.Flags().BoolVar(&autoPassword, "auto-password", false, "generate a random password")
	return cmd
}

func newOperatorsDeleteCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openOperatorStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.DeleteOperator(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted operator: %s\n", args[0])
			return nil
		},
	}
}

func newOperatorsRotateTOTP(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-totp <name>",
		Short: "Rotate TOTP secret for an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validateOperatorName(name); err != nil {
				return err
			}
			secret, url, err := generateTOTP(name)
			if err != nil {
				return err
			}
			store, err := openOperatorStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.UpdateTOTP(name, secret); err != nil {
				return err
			}
			printOperatorEnrollment(cmd.OutOrStdout(), name, "", false, secret, url)
			return nil
		},
	}
}

func newOperatorsChpasswd(cfgPath *string) *cobra.Command {
	var passwordFromStdin bool
	var autoPassword bool
	cmd := &cobra.Command{
		Use:   "chpasswd <name>",
		Short: "Change an operator's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validateOperatorName(name); err != nil {
				return err
			}
			password, generated, err := resolvePassword(cmd, passwordFromStdin, autoPassword)
			if err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			store, err := openOperatorStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.UpdatePassword(name, string(hash)); err != nil {
				return err
			}
			printOperatorEnrollment(cmd.OutOrStdout(), name, password, generated, "", "")
			return nil
		},
	}
	cmd.Flags().BoolVar(&passwordFromStdin, "password-from-stdin", false, "read password from stdin")
	cmd.Flags().BoolVar(&autoPassword, "auto-password", false, "generate a random password")
	return cmd
}

func newOperatorsAddLoginPubKey(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add-login-pubkey <name> <pubkey>",
		Short: "Add an SSH login public key to an operator",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validateOperatorName(name); err != nil {
				return err
			}
			pubKey := strings.TrimSpace(strings.Join(args[1:], " "))
			if pubKey == "" {
				return errors.New("pubkey is required")
			}
			store, err := openOperatorStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			id, err := store.AddLoginPubKey(schema.OperatorID(name), pubKey)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "login pubkey added (id %d)\n", id)
			return nil
		},
	}
}

func newOperatorsListLoginPubKeys(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list-login-pubkeys <name>",
		Short: "List SSH login public keys for an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validateOperatorName(name); err != nil {
				return err
			}
			store, err := openOperatorStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			keys, err := store.ListLoginPubKeys(schema.OperatorID(name))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(keys) == 0 {
				_, _ = fmt.Fprintln(out, "no login pubkeys")
				return nil
			}
			for idx, key := range keys {
				_, _ = fmt.Fprintf(out, "%d) %s\n", idx+1, strings.TrimSpace(key))
			}
			return nil
		},
	}
}

func newOperatorsRemoveLoginPubKey(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rm-login-pubkey <name> <id>",
		Short: "Remove an SSH login public key from an operator",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validateOperatorName(name); err != nil {
				return err
			}
			id, err := strconv.Atoi(args[1])
			if err != nil || id <= 0 {
				return errors.New("invalid pubkey id")
			}
			store, err := openOperatorStore(cmd, *cfgPath)
			if err != nil {
				return err
			}
			if err := store.RemoveLoginPubKey(schema.OperatorID(name), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "login pubkey removed (id %d)\n", id)
			return nil
		},
	}
}

func resolvePassword(cmd *cobra.Command, fromStdin, auto bool) (string, bool, error) {
	if fromStdin && auto {
		return "", false, errors.New("choose one of --password-from-stdin or --auto-password")
	}
	if fromStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", false, err
		}
		pass := strings.TrimSpace(string(data))
		if pass == "" {
			return "", false, errors.New("password from stdin is empty")
		}
		return pass, false, nil
	}
	if auto {
		pass, err := generatePassword(defaultPasswordLength)
		if err != nil {
			return "", false, err
		}
		return pass, true, nil
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	pass, err := promptLine(reader, cmd.ErrOrStderr(), "Password: ")
	if err != nil {
		return "", false, err
	}
	confirm, err := promptLine(reader, cmd.ErrOrStderr(), "Confirm password: ")
	if err != nil {
		return "", false, err
	}
	if pass != confirm {
		return "", false, errors.New("passwords do not match")
	}
	if pass == "" {
		return "", false, errors.New("password is empty")
	}
	return pass, false, nil
}

func promptLine(reader *bufio.Reader, errOut io.Writer, prompt string) (string, error) {
	_, _ = fmt.Fprint(errOut, prompt)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		length = defaultPasswordLength
	}
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	for i, b := range bytes {
		bytes[i] = charset[int(b)%len(charset)]
	}
	return string(bytes), nil
}

func generateTOTP(name string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: name,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

func printOperatorEnrollment(w io.Writer, name, password string, showPassword bool, secret, url string) {
	_, _ = fmt.Fprintf(w, "operator: %s\n", name)
	if showPassword && password != "" {
		_, _ = fmt.Fprintf(w, "password: %s\n", password)
	}
	if secret != "" {
		_, _ = fmt.Fprintf(w, "totp_secret: %s\n", secret)
	}
	if url != "" {
		_, _ = fmt.Fprintf(w, "otpauth_url: %s\n", url)
		_, _ = fmt.Fprintln(w, "totp_qr:")
		qrterminal.GenerateHalfBlock(url, qrterminal.L, w)
	}
}

func validateOperatorName(name string) error {
	if err := schema.ValidateOperatorID(schema.OperatorID(name)); err != nil {
		return errors.New("invalid operator name: must match [a-z0-9._-]")
	}
	return nil
}
