// Package logging configures the process-wide log/slog logger.
//
// New builds a JSON or text *slog.Logger from the telemetry section of the
// configuration. Its handler adds the request and change IDs carried by a
// context to records logged with the *Context methods:
//
//	logger, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
//	ctx = logging.WithChangeID(ctx, req.ID())
//	logger.InfoContext(ctx, "decision recorded", "final_status", "APPROVED")
//
// Values under sensitive keys (token, password, dsn, ...) are reduced to a
// four character hint and secret-looking strings such as bearer tokens and
// URL credentials are masked wherever they appear.
package logging
