// Package tls builds the HTTPS configuration for the API server.
//
// Certificates are served through a CertificateReloader, which re-reads the
// certificate and key when their modification times change, so a renewed
// certificate is picked up without a restart. Setting a client CA turns on
// mutual TLS: clients must present a certificate signed by that CA.
//
//	reloader := tls.NewCertificateReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval, logger)
//	if err := reloader.Start(ctx); err != nil {
//	    return err
//	}
//	tlsConfig, err := tls.NewServerConfig(cfg, reloader)
//
// Only TLS 1.2 and 1.3 are accepted.
package tls
