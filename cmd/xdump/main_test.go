package main

import (
	"errors"
	"strings"
	"testing"

	"xdump/internal/config"
	"xdump/internal/twitter"
)

func TestScrapeError_LoginHintPerBackend(t *testing.T) {
	browserCfg := config.Config{Backend: config.BackendBrowser}
	err := scrapeError(browserCfg, twitter.ErrLoginRequired)
	if !errors.Is(err, twitter.ErrLoginRequired) {
		t.Fatalf("error kind lost: %v", err)
	}
	if !strings.Contains(err.Error(), "xdump login") {
		t.Errorf("browser hint missing: %v", err)
	}

	apiCfg := config.Config{Backend: config.BackendAPI}
	err = scrapeError(apiCfg, twitter.ErrLoginRequired)
	if !strings.Contains(err.Error(), "xdump add-account") {
		t.Errorf("api hint missing: %v", err)
	}
}

func TestScrapeError_PassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("boom")
	if got := scrapeError(config.Config{}, plain); got != plain {
		t.Errorf("got %v, want error unchanged", got)
	}
}

func TestNewBackend_RejectsUnknown(t *testing.T) {
	if _, err := newBackend(config.Config{Backend: "carrier-pigeon"}, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}
