package feishusdk

import (
	"context"
	"strings"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
	larkwiki "github.com/larksuite/oapi-sdk-go/v3/service/wiki/v2"
	"github.com/pkg/errors"
)

type searchQuery struct {
	appToken  string
	tableID   string
	viewID    string
	pageToken string
	pageSize  int
	filter    *FilterInfo
}

type searchPage struct {
	rows      []Row
	hasMore   bool
	pageToken string
}

// tableAPI is one round trip per method; paging and app token resolution
// happen in Client.
type tableAPI interface {
	search(ctx context.Context, q searchQuery) (searchPage, error)
	create(ctx context.Context, appToken, tableID string, fields map[string]any) (string, error)
	update(ctx context.Context, appToken, tableID, recordID string, fields map[string]any) error
}

type nodeAPI interface {
	node(ctx context.Context, wikiToken string) (objType, objToken string, err error)
}

// recordService and spaceService match the SDK services, whose concrete
// types are unexported.
type recordService interface {
	Search(ctx context.Context, req *larkbitable.SearchAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.SearchAppTableRecordResp, error)
	Create(ctx context.Context, req *larkbitable.CreateAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.CreateAppTableRecordResp, error)
	Update(ctx context.Context, req *larkbitable.UpdateAppTableRecordReq, options ...larkcore.RequestOptionFunc) (*larkbitable.UpdateAppTableRecordResp, error)
}

type spaceService interface {
	GetNode(ctx context.Context, req *larkwiki.GetNodeSpaceReq, options ...larkcore.RequestOptionFunc) (*larkwiki.GetNodeSpaceResp, error)
}

type sdkTables struct {
	svc  recordService
	opts []larkcore.RequestOptionFunc
}

func (s sdkTables) search(ctx context.Context, q searchQuery) (searchPage, error) {
	builder := larkbitable.NewSearchAppTableRecordReqBuilder().
		AppToken(q.appToken).
		TableId(q.tableID).
		PageSize(q.pageSize)
	if q.pageToken != "" {
		builder.PageToken(q.pageToken)
	}
	body := &larkbitable.SearchAppTableRecordReqBody{Filter: q.filter}
	if q.viewID != "" {
		body.ViewId = larkcore.StringPtr(q.viewID)
	}
	builder.Body(body)

	resp, err := s.svc.Search(ctx, builder.Build(), s.opts...)
	if err != nil {
		return searchPage{}, errors.Wrap(err, "feishu: search records request")
	}
	if resp == nil {
		return searchPage{}, errors.New("feishu: empty search response")
	}
	if !resp.Success() {
		return searchPage{}, newAPIError("search records", resp.Code, resp.Msg, requestID(resp.ApiResp))
	}
	var page searchPage
	if resp.Data == nil {
		return page, nil
	}
	for _, item := range resp.Data.Items {
		if item == nil {
			continue
		}
		page.rows = append(page.rows, Row{
			RecordID: strings.TrimSpace(larkcore.StringValue(item.RecordId)),
			Fields:   item.Fields,
		})
	}
	page.hasMore = larkcore.BoolValue(resp.Data.HasMore)
	page.pageToken = strings.TrimSpace(larkcore.StringValue(resp.Data.PageToken))
	return page, nil
}

func (s sdkTables) create(ctx context.Context, appToken, tableID string, fields map[string]any) (string, error) {
	req := larkbitable.NewCreateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		AppTableRecord(larkbitable.NewAppTableRecordBuilder().Fields(fields).Build()).
		Build()
	resp, err := s.svc.Create(ctx, req, s.opts...)
	if err != nil {
		return "", errors.Wrap(err, "feishu: create record request")
	}
	if resp == nil {
		return "", errors.New("feishu: empty create response")
	}
	if !resp.Success() {
		return "", newAPIError("create record", resp.Code, resp.Msg, requestID(resp.ApiResp))
	}
	if resp.Data == nil || resp.Data.Record == nil {
		return "", errors.New("feishu: create response has no record")
	}
	return strings.TrimSpace(larkcore.StringValue(resp.Data.Record.RecordId)), nil
}

func (s sdkTables) update(ctx context.Context, appToken, tableID, recordID string, fields map[string]any) error {
	req := larkbitable.NewUpdateAppTableRecordReqBuilder().
		AppToken(appToken).
		TableId(tableID).
		RecordId(recordID).
		AppTableRecord(larkbitable.NewAppTableRecordBuilder().Fields(fields).Build()).
		Build()
	resp, err := s.svc.Update(ctx, req, s.opts...)
	if err != nil {
		return errors.Wrap(err, "feishu: update record request")
	}
	if resp == nil {
		return errors.New("feishu: empty update response")
	}
	if !resp.Success() {
		return newAPIError("update record", resp.Code, resp.Msg, requestID(resp.ApiResp))
	}
	return nil
}

type sdkNodes struct {
	svc  spaceService
	opts []larkcore.RequestOptionFunc
}

func (s sdkNodes) node(ctx context.Context, wikiToken string) (string, string, error) {
	req := larkwiki.NewGetNodeSpaceReqBuilder().Token(wikiToken).Build()
	resp, err := s.svc.GetNode(ctx, req, s.opts...)
	if err != nil {
		return "", "", errors.Wrap(err, "feishu: get wiki node request")
	}
	if resp == nil {
		return "", "", errors.New("feishu: empty wiki node response")
	}
	if !resp.Success() {
		return "", "", newAPIError("get wiki node", resp.Code, resp.Msg, requestID(resp.ApiResp))
	}
	if resp.Data == nil || resp.Data.Node == nil {
		return "", "", errors.New("feishu: wiki node response has no node")
	}
	return larkcore.StringValue(resp.Data.Node.ObjType), larkcore.StringValue(resp.Data.Node.ObjToken), nil
}

func requestID(r *larkcore.ApiResp) string {
	if r == nil {
		return ""
	}
	return r.RequestId()
}
