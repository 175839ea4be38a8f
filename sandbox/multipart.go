package sandbox

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
)

// uploadFormWriter 构造 files 端点的 multipart/form-data 上传表单。
// 单文件上传时目标路径由 URL 携带，part filename 只保留文件名；
// 批量上传时 agent 从 part filename 还原各文件的完整目标路径。
type uploadFormWriter struct {
	mw *multipart.Writer
}

func newUploadFormWriter(w io.Writer) *uploadFormWriter {
	return &uploadFormWriter{mw: multipart.NewWriter(w)}
}

func (u *uploadFormWriter) contentType() string {
	return u.mw.FormDataContentType()
}

// addFile 写入一个上传文件，part filename 取 path 的文件名部分。
func (u *uploadFormWriter) addFile(path string, r io.Reader) error {
	part, err := u.mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, r)
	return err
}

// addFileFullPath 写入一个上传文件并保留完整路径作为 part filename。
// CreateFormFile 会对 filename 取 basename，这里手工构造 part 头。
func (u *uploadFormWriter) addFileFullPath(path string, r io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, path))
	h.Set("Content-Type", "application/octet-stream")
	part, err := u.mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, r)
	return err
}

func (u *uploadFormWriter) close() error {
	return u.mw.Close()
}
