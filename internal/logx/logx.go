package logx

import (
	"context"

	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	operatorKey contextKey = iota
	tabKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithOperator annotates the logger with the operator id if present.
func WithOperator(ctx context.Context, operatorID schema.OperatorID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if operatorID != "" {
		if current, ok := ctx.Value(operatorKey).(schema.OperatorID); ok && current == operatorID {
			return log
		}
		log = log.With("operator", operatorID)
	}
	return log
}

// WithOperatorTab annotates the logger with operator and tab identifiers.
func WithOperatorTab(ctx context.Context, operatorID schema.OperatorID, tabID schema.TabID) pslog.Logger {
	log := WithOperator(ctx, operatorID)
	if tabID != "" {
		if current, ok := ctx.Value(tabKey).(schema.TabID); ok && current == tabID {
			return log
		}
		log = log.With("tab", tabID)
	}
	return log
}

// WithPane annotates the logger with a pane id when available.
func WithPane(log pslog.Logger, paneID schema.PaneID) pslog.Logger {
	if paneID != "" {
		log = log.With("pane", paneID)
	}
	return log
}

// WithDomain annotates the logger with pane domain metadata.
func WithDomain(log pslog.Logger, domain schema.Domain) pslog.Logger {
	if domain.Kind != "" {
		log = log.With("domain", domain.Key())
	}
	return log
}

// ContextWithOperator stores the operator marker on the context for log
// de-duplication.
func ContextWithOperator(ctx context.Context, operatorID schema.OperatorID) context.Context {
	if ctx == nil || operatorID == "" {
		return ctx
	}
	return context.WithValue(ctx, operatorKey, operatorID)
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, tabID schema.TabID) context.Context {
	if ctx == nil || tabID == "" {
		return ctx
	}
	return context.WithValue(ctx, tabKey, tabID)
}

// ContextWithOperatorLogger attaches the logger and operator marker to the
// context.
func ContextWithOperatorLogger(ctx context.Context, log pslog.Logger, operatorID schema.OperatorID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithOperator(ctx, operatorID)
}

// CopyContextFields copies operator/tab markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if operator, ok := src.Value(operatorKey).(schema.OperatorID); ok && operator != "" {
		dst = ContextWithOperator(dst, operator)
	}
	if tab, ok := src.Value(tabKey).(schema.TabID); ok && tab != "" {
		dst = ContextWithTab(dst, tab)
	}
	return dst
}
