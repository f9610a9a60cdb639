// Package feishusdk is the slice of the Feishu/Lark open platform FieldSync
// writes field records through: Bitable record search, create and update,
// plus wiki node lookup for tables linked from a wiki page.
package feishusdk

import (
	"strings"
	"sync"

	"github.com/httprunner/FieldSync/internal/env"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

var defaultBaseURL = lark.FeishuBaseUrl

// Client talks to Bitable through the official SDK, which also owns the
// tenant access token lifecycle.
type Client struct {
	baseURL string
	tables  tableAPI
	nodes   nodeAPI

	appTokenMu sync.RWMutex
	appTokens  map[string]string // wiki token -> bitable app token
	resolving  singleflight.Group
}

// NewClientFromEnv reads FEISHU_APP_ID and FEISHU_APP_SECRET (required) and
// FEISHU_TENANT_KEY, FEISHU_BASE_URL (optional).
func NewClientFromEnv() (*Client, error) {
	appID := env.String("FEISHU_APP_ID", "")
	appSecret := env.String("FEISHU_APP_SECRET", "")
	if appID == "" || appSecret == "" {
		return nil, errors.New("feishu: FEISHU_APP_ID and FEISHU_APP_SECRET must be set")
	}
	return NewClient(appID, appSecret, env.String("FEISHU_TENANT_KEY", ""), env.String("FEISHU_BASE_URL", ""))
}

// NewClient builds a client for one app. An empty baseURL means open.feishu.cn.
func NewClient(appID, appSecret, tenantKey, baseURL string) (*Client, error) {
	if strings.TrimSpace(appID) == "" || strings.TrimSpace(appSecret) == "" {
		return nil, errors.New("feishu: app id and app secret are required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	opts := []lark.ClientOptionFunc{lark.WithLogLevel(larkcore.LogLevelError)}
	if baseURL != defaultBaseURL {
		opts = append(opts, lark.WithOpenBaseUrl(baseURL))
	}
	sdk := lark.NewClient(appID, appSecret, opts...)

	var reqOpts []larkcore.RequestOptionFunc
	if key := strings.TrimSpace(tenantKey); key != "" {
		reqOpts = append(reqOpts, larkcore.WithTenantKey(key))
	}
	return newClient(baseURL,
		sdkTables{svc: sdk.Bitable.V1.AppTableRecord, opts: reqOpts},
		sdkNodes{svc: sdk.Wiki.V2.Space, opts: reqOpts}), nil
}

func newClient(baseURL string, tables tableAPI, nodes nodeAPI) *Client {
	return &Client{
		baseURL:   baseURL,
		tables:    tables,
		nodes:     nodes,
		appTokens: make(map[string]string),
	}
}

// BaseURL is the open platform origin, which doubles as the default
// connectivity probe target.
func (c *Client) BaseURL() string {
	if c == nil || c.baseURL == "" {
		return defaultBaseURL
	}
	return c.baseURL
}
