package pmos

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	"pmoscrawl/lib/telemetry"
)

// Fetcher downloads export artifacts over plain HTTP, reusing the
// browser session's cookies. Some report views expose the export as a
// real href, and fetching that directly is faster and less flaky than
// waiting on the browser's download events.
type Fetcher struct {
	base   *url.URL
	client *resty.Client
}

func NewFetcher(base string, cookies []*http.Cookie) (*Fetcher, error) {
	baseUrl, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	jar.SetCookies(baseUrl, cookies)
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetHeader("referer", base)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 60)

	telemetry.InstrumentResty(client, "scrapers/pmos/http")

	return &Fetcher{base: baseUrl, client: client}, nil
}

// Fetch resolves href against the page the fetcher was built from and
// returns the response body plus the server's suggested filename.
func (f *Fetcher) Fetch(ctx context.Context, href string) (name string, raw []byte, err error) {
	target, err := f.base.Parse(href)
	if err != nil {
		return "", nil, fmt.Errorf("resolve export href: %w", err)
	}

	res, err := f.client.R().SetContext(ctx).Get(target.String())
	if err != nil {
		return "", nil, err
	}
	if res.StatusCode() != http.StatusOK {
		return "", nil, fmt.Errorf("export fetch returned %s", res.Status())
	}

	name = path.Base(target.Path)
	if cd := res.Header().Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			name = params["filename"]
		}
	}
	return name, res.Body(), nil
}
