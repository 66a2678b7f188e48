package utils

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

func IsValidEmail(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

func IsValidDomain(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}
	labelRe := regexp.MustCompile(`^[a-zA-Z0-9\-]+$`)
	for _, part := range strings.Split(domain, ".") {
		if len(part) == 0 || len(part) > 63 {
			return false
		}
		if !labelRe.MatchString(part) {
			return false
		}
		if part[0] == '-' || part[len(part)-1] == '-' {
			return false
		}
	}
	return true
}

// NormalizeURL prepends https:// when the scheme is missing and verifies the
// result is an absolute HTTP(S) URL with a resolvable-looking host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q (only http and https)", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("invalid URL: no domain specified")
	}
	if net.ParseIP(host) == nil && !IsValidDomain(host) {
		return "", fmt.Errorf("invalid host %q", host)
	}
	return u.String(), nil
}

// ContentHash fingerprints rendered HTML for scan IDs and report filenames.
func ContentHash(data []byte) string {
	sum := xxh3.Hash128(data)
	return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo)
}

func GenerateScanID(pageURL string, at time.Time) string {
	h := ContentHash([]byte(pageURL))
	return fmt.Sprintf("scan_%s_%s", h[:12], at.Format("20060102_150405"))
}

// SanitizeFilename flattens a URL into a filesystem-safe report name.
func SanitizeFilename(pageURL string) string {
	replacer := strings.NewReplacer(
		"http://", "",
		"https://", "",
		"www.", "",
		"/", "_",
		":", "_",
		"?", "_",
		"&", "_",
		"=", "_",
		"#", "_",
		" ", "_",
	)
	s := replacer.Replace(pageURL)
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func Retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("after %d attempts, last error: %w", attempts, err)
}

func RetryWithContext(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			err = fn()
			if err == nil {
				return nil
			}
			if i < attempts-1 {
				select {
				case <-time.After(delay):
					delay *= 2
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return fmt.Errorf("after %d attempts, last error: %w", attempts, err)
}
