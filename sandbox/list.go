package sandbox

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ListOption 列表查询选项。
type ListOption func(*listOpts)

type listOpts struct {
	limit int32
}

// WithPageSize 设置每页最大返回数。
func WithPageSize(limit int32) ListOption {
	return func(o *listOpts) { o.limit = limit }
}

// SandboxPaginator 是 List 查询的分页迭代器。
//
// 分页契约：结果按游标分页，调用方必须迭代至 HasNext 返回 false
// 才能看到完整结果集；部分消费只得到部分视图。
// 每次 List 调用返回独立的迭代器，可重新开始。
type SandboxPaginator struct {
	client *Client
	query  listSandboxesQuery

	nextToken string
	hasNext   bool
}

// List 按过滤条件列出沙箱，返回惰性分页迭代器。
// query 为 nil 时列出全部沙箱。
func (c *Client) List(query *Query, opts ...ListOption) *SandboxPaginator {
	o := &listOpts{}
	for _, fn := range opts {
		fn(o)
	}

	apiQuery := listSandboxesQuery{Limit: o.limit}
	if query != nil {
		apiQuery.Metadata = encodeMetadataFilter(query.Metadata)
		apiQuery.State = query.State
	}

	return &SandboxPaginator{
		client:  c,
		query:   apiQuery,
		hasNext: true,
	}
}

// HasNext 返回是否还有下一页。
func (p *SandboxPaginator) HasNext() bool {
	return p.hasNext
}

// Next 获取下一页结果。
// 所有页均已消费后调用返回空切片。
func (p *SandboxPaginator) Next(ctx context.Context) ([]SandboxInfo, error) {
	if !p.hasNext {
		return nil, nil
	}

	query := p.query
	query.NextToken = p.nextToken
	resp, err := p.client.api.listSandboxes(ctx, query)
	if err != nil {
		return nil, err
	}

	if resp.NextToken != nil && *resp.NextToken != "" {
		p.nextToken = *resp.NextToken
	} else {
		p.hasNext = false
	}
	return sandboxInfosFromAPI(resp.Sandboxes), nil
}

// ListAll 列出所有匹配的沙箱，内部耗尽全部分页。
func (c *Client) ListAll(ctx context.Context, query *Query, opts ...ListOption) ([]SandboxInfo, error) {
	paginator := c.List(query, opts...)

	var all []SandboxInfo
	for paginator.HasNext() {
		items, err := paginator.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}

// killAllConcurrency 限制 KillAll 并行终止的沙箱数。
const killAllConcurrency = 8

// KillAll 终止所有匹配过滤条件的沙箱，常用于测试后的环境清理。
// 各沙箱的终止请求并行发出；单个沙箱已不存在不视为失败。
func (c *Client) KillAll(ctx context.Context, query *Query) (int, error) {
	sandboxes, err := c.ListAll(ctx, query)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(killAllConcurrency)
	for _, info := range sandboxes {
		id := info.SandboxID
		g.Go(func() error {
			err := c.api.deleteSandbox(gctx, id)
			if err != nil && !IsNotFound(err) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(sandboxes), nil
}
