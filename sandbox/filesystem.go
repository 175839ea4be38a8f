package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// FileType 文件类型。
type FileType string

const (
	// FileTypeFile 表示普通文件。
	FileTypeFile FileType = "file"
	// FileTypeDirectory 表示目录。
	FileTypeDirectory FileType = "dir"
)

// EntryInfo 文件或目录的元信息。
type EntryInfo struct {
	Name          string    `json:"name"`
	Type          FileType  `json:"type"`
	Path          string    `json:"path"`
	Size          int64     `json:"size"`
	Mode          uint32    `json:"mode"`
	Permissions   string    `json:"permissions"`
	Owner         string    `json:"owner"`
	Group         string    `json:"group"`
	ModifiedTime  time.Time `json:"modifiedTime"`
	SymlinkTarget *string   `json:"symlinkTarget,omitempty"`
}

// EventType 文件系统事件类型。
type EventType string

const (
	// EventCreate 文件或目录被创建。
	EventCreate EventType = "create"
	// EventWrite 文件被写入。
	EventWrite EventType = "write"
	// EventRemove 文件或目录被删除。
	EventRemove EventType = "remove"
	// EventRename 文件或目录被重命名。
	EventRename EventType = "rename"
	// EventChmod 文件或目录权限被修改。
	EventChmod EventType = "chmod"
)

// FilesystemEvent 文件系统事件。
type FilesystemEvent struct {
	Name string    `json:"name"`
	Type EventType `json:"type"`
}

// FilesystemOption 文件系统操作选项。
type FilesystemOption func(*filesystemOpts)

type filesystemOpts struct {
	user string
}

// WithUser 设置文件系统操作的用户身份。
func WithUser(user string) FilesystemOption {
	return func(o *filesystemOpts) { o.user = user }
}

func applyFilesystemOpts(opts []FilesystemOption) *filesystemOpts {
	o := &filesystemOpts{user: DefaultUser}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// ListDirOption 列目录选项。
type ListDirOption func(*listDirOpts)

type listDirOpts struct {
	filesystemOpts
	depth uint32
}

// WithDepth 设置列目录的递归深度，默认为 1。
func WithDepth(depth uint32) ListDirOption {
	return func(o *listDirOpts) { o.depth = depth }
}

// WithListUser 设置列目录操作的用户身份。
func WithListUser(user string) ListDirOption {
	return func(o *listDirOpts) { o.user = user }
}

func applyListDirOpts(opts []ListDirOption) *listDirOpts {
	o := &listDirOpts{
		filesystemOpts: filesystemOpts{user: DefaultUser},
		depth:          1,
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// WatchOption 目录监听选项。
type WatchOption func(*watchOpts)

type watchOpts struct {
	filesystemOpts
	recursive bool
}

// WithRecursive 设置是否递归监听子目录。
func WithRecursive(recursive bool) WatchOption {
	return func(o *watchOpts) { o.recursive = recursive }
}

// WithWatchUser 设置监听操作的用户身份。
func WithWatchUser(user string) WatchOption {
	return func(o *watchOpts) { o.user = user }
}

func applyWatchOpts(opts []WatchOption) *watchOpts {
	o := &watchOpts{
		filesystemOpts: filesystemOpts{user: DefaultUser},
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// WatchHandle 目录监听句柄。
type WatchHandle struct {
	events chan FilesystemEvent
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Events 返回文件系统事件通道。
func (w *WatchHandle) Events() <-chan FilesystemEvent {
	return w.events
}

// Err 返回监听过程中发生的错误。应在 Events 通道关闭后调用。
func (w *WatchHandle) Err() error {
	return w.err
}

// Stop 停止监听。
func (w *WatchHandle) Stop() {
	w.cancel()
	<-w.done
}

// Filesystem 提供沙箱文件系统操作。
type Filesystem struct {
	sandbox *Sandbox
}

// newFilesystem 创建 Filesystem 实例。
func newFilesystem(s *Sandbox) *Filesystem {
	return &Filesystem{sandbox: s}
}

// Read 读取指定路径的文件内容。
func (fs *Filesystem) Read(ctx context.Context, path string, opts ...FilesystemOption) ([]byte, error) {
	o := applyFilesystemOpts(opts)
	downloadURL := fs.sandbox.DownloadURL(path, WithFileUser(o.user))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	setAgentAuth(req, o.user)

	resp, err := fs.sandbox.client.dataClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, newAPIError(resp.StatusCode, body)
	}

	return io.ReadAll(resp.Body)
}

// Write 写入文件内容。如果文件已存在则覆盖，自动创建父目录。
// 内容以 multipart/form-data 上传。
func (fs *Filesystem) Write(ctx context.Context, path string, data []byte, opts ...FilesystemOption) (*EntryInfo, error) {
	o := applyFilesystemOpts(opts)
	uploadURL := fs.sandbox.UploadURL(path, WithFileUser(o.user))

	pr, pw := io.Pipe()
	writer := newUploadFormWriter(pw)

	go func() {
		if err := writer.addFile(path, bytes.NewReader(data)); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := writer.close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, pr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.contentType())
	setAgentAuth(req, o.user)

	resp, err := fs.sandbox.client.dataClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, newAPIError(resp.StatusCode, body)
	}

	// 上传成功后通过 Stat 获取文件信息
	return fs.GetInfo(ctx, path, opts...)
}

// WriteFile 是单个文件的批量上传条目。
type WriteFile struct {
	Path string
	Data []byte
}

// WriteFiles 批量写入多个文件，路径由 multipart part filename 提供。
func (fs *Filesystem) WriteFiles(ctx context.Context, files []WriteFile, opts ...FilesystemOption) error {
	o := applyFilesystemOpts(opts)

	pr, pw := io.Pipe()
	writer := newUploadFormWriter(pw)

	go func() {
		for _, f := range files {
			if err := writer.addFileFullPath(f.Path, bytes.NewReader(f.Data)); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		if err := writer.close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fs.sandbox.batchUploadURL(o.user), pr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.contentType())
	setAgentAuth(req, o.user)

	resp, err := fs.sandbox.client.dataClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload files: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, body)
	}
	return nil
}

// List 列出目录内容。
func (fs *Filesystem) List(ctx context.Context, path string, opts ...ListDirOption) ([]EntryInfo, error) {
	o := applyListDirOpts(opts)

	q := url.Values{}
	q.Set("path", path)
	q.Set("depth", strconv.FormatUint(uint64(o.depth), 10))

	var out struct {
		Entries []EntryInfo `json:"entries"`
	}
	if err := fs.doJSON(ctx, http.MethodGet, "/files/list?"+q.Encode(), nil, o.user, &out); err != nil {
		return nil, fmt.Errorf("list dir: %w", err)
	}
	return out.Entries, nil
}

// Exists 检查文件或目录是否存在。
func (fs *Filesystem) Exists(ctx context.Context, path string, opts ...FilesystemOption) (bool, error) {
	_, err := fs.GetInfo(ctx, path, opts...)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetInfo 返回文件或目录的元信息。
func (fs *Filesystem) GetInfo(ctx context.Context, path string, opts ...FilesystemOption) (*EntryInfo, error) {
	o := applyFilesystemOpts(opts)

	q := url.Values{}
	q.Set("path", path)

	var out struct {
		Entry EntryInfo `json:"entry"`
	}
	if err := fs.doJSON(ctx, http.MethodGet, "/files/stat?"+q.Encode(), nil, o.user, &out); err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	return &out.Entry, nil
}

// MakeDir 创建目录（包含父目录）。
func (fs *Filesystem) MakeDir(ctx context.Context, path string, opts ...FilesystemOption) (*EntryInfo, error) {
	o := applyFilesystemOpts(opts)

	var out struct {
		Entry EntryInfo `json:"entry"`
	}
	body := map[string]string{"path": path}
	if err := fs.doJSON(ctx, http.MethodPost, "/files/mkdir", body, o.user, &out); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &out.Entry, nil
}

// Remove 删除文件或目录。
func (fs *Filesystem) Remove(ctx context.Context, path string, opts ...FilesystemOption) error {
	o := applyFilesystemOpts(opts)

	q := url.Values{}
	q.Set("path", path)
	if err := fs.doJSON(ctx, http.MethodDelete, "/files?"+q.Encode(), nil, o.user, nil); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// Rename 重命名或移动文件/目录。
func (fs *Filesystem) Rename(ctx context.Context, oldPath, newPath string, opts ...FilesystemOption) (*EntryInfo, error) {
	o := applyFilesystemOpts(opts)

	var out struct {
		Entry EntryInfo `json:"entry"`
	}
	body := map[string]string{"source": oldPath, "destination": newPath}
	if err := fs.doJSON(ctx, http.MethodPost, "/files/rename", body, o.user, &out); err != nil {
		return nil, fmt.Errorf("move: %w", err)
	}
	return &out.Entry, nil
}

// WatchDir 监听目录变更。返回 WatchHandle 用于接收事件和停止监听。
func (fs *Filesystem) WatchDir(ctx context.Context, path string, opts ...WatchOption) (*WatchHandle, error) {
	o := applyWatchOpts(opts)

	watchCtx, cancel := context.WithCancel(ctx)

	q := url.Values{}
	q.Set("path", path)
	if o.recursive {
		q.Set("recursive", "true")
	}
	u := fs.sandbox.agentURL() + "/files/watch?" + q.Encode()

	req, err := http.NewRequestWithContext(watchCtx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	setAgentAuth(req, o.user)

	resp, err := fs.sandbox.client.dataClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, newAPIError(resp.StatusCode, body)
	}

	w := &WatchHandle{
		events: make(chan FilesystemEvent, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		defer close(w.events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), maxEventLine)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var ev FilesystemEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				continue
			}
			select {
			case w.events <- ev:
			case <-watchCtx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && watchCtx.Err() == nil {
			w.err = err
		}
	}()

	return w, nil
}

// doJSON 对 agent runtime 文件接口发起 JSON 请求。
func (fs *Filesystem) doJSON(ctx context.Context, method, pathAndQuery string, body interface{}, user string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fs.sandbox.agentURL()+pathAndQuery, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	setAgentAuth(req, user)

	resp, err := fs.sandbox.client.dataClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
