package httpx

import "golang.org/x/crypto/acme/autocert"

// certCacheDir keeps issued certificates between restarts.
const certCacheDir = "assets/cache"

// autoCertManager issues certificates via ACME for servers without a
// static certificate pair. An empty host skips the whitelist.
func autoCertManager(host string) *autocert.Manager {
	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache(certCacheDir),
	}
	if host != "" {
		m.HostPolicy = autocert.HostWhitelist(host)
	}
	return m
}
