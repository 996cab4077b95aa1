package ingest

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ofs-tlaxcala/scil/internal/resilience"
)

// InboxOptions configures the FTP drop where entities upload their quincenal
// workbooks.
type InboxOptions struct {
	URL      string        // ftp://host[:port]/path
	User     string        // default anonymous
	Password string
	Timeout  time.Duration
	// DownloadsPerSecond throttles retrievals so a large inbox does not
	// saturate the shared server. Zero means 1/s.
	DownloadsPerSecond float64
}

// Inbox fetches pending workbooks from an FTP server.
type Inbox struct {
	opts    InboxOptions
	limiter *rate.Limiter
}

// NewInbox creates an Inbox with the given options.
func NewInbox(opts InboxOptions) *Inbox {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	rps := opts.DownloadsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Inbox{opts: opts, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// parseInboxURL extracts host (with port) and directory path from an FTP URL.
func parseInboxURL(rawURL string) (host string, dir string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ingest: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ingest: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	dir = u.Path
	if dir == "" {
		dir = "/"
	}
	return host, dir, nil
}

// Fetch downloads every .xlsx file in the inbox directory to destDir and
// returns the local paths, sorted by the server's listing order.
func (in *Inbox) Fetch(ctx context.Context, destDir string) ([]string, error) {
	host, dir, err := parseInboxURL(in.opts.URL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ingest: connecting to ftp inbox",
		zap.String("host", host), zap.String("dir", dir))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(in.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: ftp dial")
	}
	defer conn.Quit()

	if err := conn.Login(in.opts.User, in.opts.Password); err != nil {
		return nil, eris.Wrap(err, "ingest: ftp login")
	}

	entries, err := conn.List(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: ftp list %s", dir)
	}

	var local []string
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name), ".xlsx") {
			continue
		}

		if err := in.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "ingest: ftp rate limit")
		}

		remote := path.Join(dir, entry.Name)
		dest := filepath.Join(destDir, entry.Name)

		retryCfg := resilience.DefaultRetryConfig()
		retryCfg.OnRetry = resilience.RetryLogger("ftp download " + entry.Name)
		if err := resilience.Do(ctx, retryCfg, func(context.Context) error {
			return in.download(conn, remote, dest)
		}); err != nil {
			return nil, err
		}
		zap.L().Info("ingest: fetched workbook from inbox",
			zap.String("remote", remote), zap.String("local", dest))
		local = append(local, dest)
	}

	return local, nil
}

func (in *Inbox) download(conn *ftp.ServerConn, remote, dest string) error {
	resp, err := conn.Retr(remote)
	if err != nil {
		return eris.Wrapf(err, "ingest: ftp retrieve %s", remote)
	}
	defer resp.Close()

	file, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "ingest: create %s", dest)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp); err != nil {
		return eris.Wrapf(err, "ingest: write %s", dest)
	}
	return nil
}
