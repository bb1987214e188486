package transport

import (
	"crypto/x509"
	"testing"
	"time"
)

func TestGenerateSelfSignedTLSConfigReturnsValidCert(t *testing.T) {
	tlsCfg, fingerprint, err := GenerateSelfSignedTLSConfig("")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if fingerprint == "" {
		t.Fatal("expected non-empty fingerprint")
	}
	if len(fingerprint) != 64 { // SHA-256 hex = 32 bytes = 64 chars
		t.Errorf("fingerprint length: got %d, want 64", len(fingerprint))
	}
	if len(tlsCfg.Certificates) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(tlsCfg.Certificates))
	}

	leaf := tlsCfg.Certificates[0].Leaf
	if leaf == nil {
		t.Fatal("expected parsed leaf certificate")
	}
	if leaf.Subject.CommonName != "lobbygame" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "lobbygame")
	}

	now := time.Now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		t.Errorf("cert not valid at current time: NotBefore=%v NotAfter=%v", leaf.NotBefore, leaf.NotAfter)
	}
}

func TestGenerateSelfSignedTLSConfigHostnameOverridesCN(t *testing.T) {
	tlsCfg, _, err := GenerateSelfSignedTLSConfig("game-host-7")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	leaf := tlsCfg.Certificates[0].Leaf
	if leaf.Subject.CommonName != "game-host-7" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "game-host-7")
	}
	found := false
	for _, name := range leaf.DNSNames {
		if name == "game-host-7" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected hostname in DNS names, got %v", leaf.DNSNames)
	}
}

func TestGenerateSelfSignedTLSConfigUniqueCerts(t *testing.T) {
	_, fp1, err := GenerateSelfSignedTLSConfig("")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, fp2, err := GenerateSelfSignedTLSConfig("")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if fp1 == fp2 {
		t.Error("two calls should produce different certificates")
	}
}

func TestGenerateSelfSignedTLSConfigSelfSigned(t *testing.T) {
	tlsCfg, _, err := GenerateSelfSignedTLSConfig("")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	leaf := tlsCfg.Certificates[0].Leaf

	if leaf.Issuer.CommonName != leaf.Subject.CommonName {
		t.Errorf("expected self-signed cert: issuer=%q subject=%q", leaf.Issuer.CommonName, leaf.Subject.CommonName)
	}

	found := false
	for _, name := range leaf.DNSNames {
		if name == "localhost" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected localhost in DNS names, got %v", leaf.DNSNames)
	}

	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	_, err = leaf.Verify(x509.VerifyOptions{
		DNSName: "localhost",
		Roots:   pool,
	})
	if err != nil {
		t.Errorf("self-verification failed: %v", err)
	}
}

func TestInsecureClientTLSConfigSkipsVerification(t *testing.T) {
	cfg := InsecureClientTLSConfig()
	if !cfg.InsecureSkipVerify {
		t.Error("expected InsecureSkipVerify true")
	}
	if len(cfg.NextProtos) == 0 {
		t.Error("expected NextProtos set to match server ALPN")
	}
}
