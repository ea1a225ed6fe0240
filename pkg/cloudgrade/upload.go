package cloudgrade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

var mimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Upload sends one local file to the resource endpoint and returns its name
// and hosted URL. Each upload carries a fresh UUID identify code; files are
// always sent as a single chunk.
func (c *httpClient) Upload(ctx context.Context, filePath string) (*FileInfo, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("cloudgrade: open %s", filePath))
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("cloudgrade: stat %s", filePath))
	}
	fileName := filepath.Base(filePath)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := map[string]string{
		"identifyCode": uuid.New().String(),
		"name":         fileName,
		"chunk":        "0",
		"chunks":       "1",
		"size":         strconv.FormatInt(stat.Size(), 10),
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, eris.Wrap(err, "cloudgrade: write form field")
		}
	}

	part, err := createFilePart(w, fileName)
	if err != nil {
		return nil, eris.Wrap(err, "cloudgrade: create file part")
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("cloudgrade: read %s", filePath))
	}
	if err := w.Close(); err != nil {
		return nil, eris.Wrap(err, "cloudgrade: finalize multipart body")
	}

	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "cloudgrade: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/basic-resource/file/upload", &body)
	if err != nil {
		return nil, eris.Wrap(err, "cloudgrade: create upload request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.setAuth(req)

	data, err := c.do(req)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("cloudgrade: upload %s", fileName))
	}

	var resp struct {
		OssURL string `json:"ossUrl"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, eris.Wrap(err, "cloudgrade: decode upload response")
	}
	if resp.OssURL == "" {
		return nil, eris.Errorf("cloudgrade: upload %s: response missing ossUrl", fileName)
	}

	return &FileInfo{FileName: fileName, FileURL: resp.OssURL}, nil
}

// createFilePart adds the file form part with an explicit content type
// derived from the extension.
func createFilePart(w *multipart.Writer, fileName string) (io.Writer, error) {
	mimeType, ok := mimeByExt[strings.ToLower(filepath.Ext(fileName))]
	if !ok {
		mimeType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName))
	h.Set("Content-Type", mimeType)
	return w.CreatePart(h)
}
