package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ftpTimeout bounds the FTP dial and each control exchange.
const ftpTimeout = 30 * time.Second

type ftpTarget struct {
	host     string
	path     string
	user     string
	password string
}

// parseFTPURL extracts host (with port), path and credentials from an FTP
// URL. Without userinfo the login is anonymous.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "fetcher: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("fetcher: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.New("fetcher: empty path in ftp url")
	}

	t := ftpTarget{
		host:     u.Host,
		path:     u.Path,
		user:     "anonymous",
		password: "anonymous@",
	}
	if _, _, splitErr := net.SplitHostPort(t.host); splitErr != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if u.User != nil && u.User.Username() != "" {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// ftpConnReader closes the transfer and the control connection together.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "fetcher: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "fetcher: quit ftp connection")
	}
	return nil
}

func downloadFTP(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	t, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("fetcher: ftp connecting", zap.String("host", t.host), zap.String("path", t.path))

	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: ftp dial")
	}
	if err := conn.Login(t.user, t.password); err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "fetcher: ftp login")
	}
	resp, err := conn.Retr(t.path)
	if err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "fetcher: ftp retrieve")
	}
	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// OpenSource makes a local file out of location, which is a filesystem
// path, an http(s) URL or an ftp URL. Remote sources are copied to a temp
// file; the returned cleanup removes it and is a no-op for local paths.
func (f *PageFetcher) OpenSource(ctx context.Context, location string) (string, func(), error) {
	noop := func() {}
	location = strings.TrimSpace(location)
	if location == "" {
		return "", noop, eris.New("fetcher: empty source location")
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || u.Scheme == "file" || len(u.Scheme) == 1 {
		p := location
		if err == nil && u.Scheme == "file" {
			p = u.Path
		}
		if _, err := os.Stat(p); err != nil {
			return "", noop, eris.Wrapf(err, "fetcher: open %s", p)
		}
		return p, noop, nil
	}

	var body io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		resp, err := f.get(ctx, location)
		if err != nil {
			return "", noop, err
		}
		body = resp.Body
	case "ftp":
		body, err = downloadFTP(ctx, location)
		if err != nil {
			return "", noop, err
		}
	default:
		return "", noop, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
	defer body.Close() //nolint:errcheck

	file, err := os.CreateTemp("", "policy-tracker-*"+path.Ext(u.Path))
	if err != nil {
		return "", noop, eris.Wrap(err, "fetcher: create temp file")
	}
	cleanup := func() { os.Remove(file.Name()) } //nolint:errcheck

	n, err := io.Copy(file, body)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", noop, eris.Wrap(err, "fetcher: write temp file")
	}

	zap.L().Info("fetcher: source downloaded",
		zap.String("location", u.Redacted()),
		zap.Int64("bytes", n),
	)
	return file.Name(), cleanup, nil
}
