package feishusdk

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var feishuHosts = []string{"feishu.cn", "feishuapp.com", "larksuite.com", "larkoffice.com"}

// TableRef locates one Bitable table. Links copied from a wiki page carry a
// WikiToken instead of the app token, which is looked up on first use.
type TableRef struct {
	AppToken  string
	WikiToken string
	TableID   string
	ViewID    string
}

// ParseTableURL accepts .../base/<app>?table=<id> and .../wiki/<token>?table=<id>
// links on a Feishu or Lark host.
func ParseTableURL(raw string) (TableRef, error) {
	var ref TableRef
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ref, errors.Wrapf(err, "feishu: table url %q", raw)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return ref, errors.Errorf("feishu: table url %q needs an http(s) scheme", raw)
	}
	if !knownHost(u.Hostname()) {
		return ref, errors.Errorf("feishu: table url host %q is not a Feishu/Lark host", u.Hostname())
	}

	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	for i := 0; i+1 < len(segments); i++ {
		switch segments[i] {
		case "base":
			ref.AppToken = segments[i+1]
		case "wiki":
			ref.WikiToken = segments[i+1]
		}
	}
	if ref.AppToken == "" && ref.WikiToken == "" {
		return ref, errors.Errorf("feishu: table url %q has no /base/ or /wiki/ token", raw)
	}

	q := u.Query()
	ref.TableID = firstParam(q, "table", "table_id", "tableId")
	ref.ViewID = firstParam(q, "view", "view_id", "viewId")
	if ref.TableID == "" {
		return ref, errors.Errorf("feishu: table url %q has no table parameter", raw)
	}
	return ref, nil
}

func knownHost(host string) bool {
	host = strings.ToLower(host)
	for _, suffix := range feishuHosts {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

func firstParam(q url.Values, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

// table parses rawURL and fills in the app token of wiki links.
func (c *Client) table(ctx context.Context, rawURL string) (TableRef, error) {
	ref, err := ParseTableURL(rawURL)
	if err != nil || ref.AppToken != "" {
		return ref, err
	}

	c.appTokenMu.RLock()
	cached := c.appTokens[ref.WikiToken]
	c.appTokenMu.RUnlock()
	if cached != "" {
		ref.AppToken = cached
		return ref, nil
	}

	v, err, _ := c.resolving.Do(ref.WikiToken, func() (any, error) {
		objType, objToken, err := c.nodes.node(ctx, ref.WikiToken)
		if err != nil {
			return "", err
		}
		if objType != "bitable" {
			return "", &errNotBitable{wikiToken: ref.WikiToken, objType: objType}
		}
		if objToken == "" {
			return "", errors.Errorf("feishu: wiki node %s has no obj_token", ref.WikiToken)
		}
		c.appTokenMu.Lock()
		c.appTokens[ref.WikiToken] = objToken
		c.appTokenMu.Unlock()
		return objToken, nil
	})
	if err != nil {
		return ref, err
	}
	ref.AppToken = v.(string)
	return ref, nil
}
