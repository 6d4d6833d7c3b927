package client

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
)

// DefaultChunkSize is the chunk size used when none is given.
const DefaultChunkSize = 5 << 20

type (
	// A Client uploads files to a resumable server.
	Client struct {
		logger    logger.Logger
		http      *retryablehttp.Client
		baseURL   string
		chunkSize int64
	}

	// A Status is the server view of an upload.
	Status struct {
		IsUploaded bool  `json:"isUploaded"`
		Uploaded   []int `json:"uploaded"`
		Merged     bool  `json:"merged"`
	}

	// A Report summarizes a Push.
	Report struct {
		Hash     string
		FileName string
		Size     int64
		Total    int
		Sent     int
		Skipped  int
	}

	message struct {
		Message string `json:"message"`
	}
)

// New returns a new Client for the server at baseURL.
func New(log logger.Logger, baseURL string, chunkSize int64) *Client {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	log = log.WithPrefix("[client]")

	hc := retryablehttp.NewClient()
	hc.Logger = nil
	hc.RequestLogHook = func(_ retryablehttp.Logger, r *http.Request, attempt int) {
		if attempt > 0 {
			log.Infof("retrying %s %s (attempt %d)", r.Method, r.URL, attempt)
		}
	}

	return &Client{
		logger:    log,
		http:      hc,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		chunkSize: chunkSize,
	}
}

// SetRetryMax sets the maximum number of retries per request.
func (c *Client) SetRetryMax(n int) {
	c.http.RetryMax = n
}

// Push uploads the file at path, skipping the chunks already stored on the server, then merges them.
func (c *Client) Push(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open file")
	}
	defer f.Close()

	h := md5.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return nil, errors.Wrap(err, "could not hash file")
	}

	report := &Report{
		Hash:     hex.EncodeToString(h.Sum(nil)),
		FileName: filepath.Base(path),
		Size:     size,
		Total:    int((size + c.chunkSize - 1) / c.chunkSize),
	}
	if report.Total == 0 {
		report.Total = 1 // empty file
	}

	//

	status, err := c.CheckUploaded(ctx, report.Hash)
	if err != nil {
		return nil, err
	}

	uploaded := map[int]bool{}
	for _, index := range status.Uploaded {
		uploaded[index] = true
	}

	for i := 0; i < report.Total; i++ {
		if uploaded[i] {
			report.Skipped++
			continue
		}

		data, err := io.ReadAll(io.NewSectionReader(f, int64(i)*c.chunkSize, c.chunkSize))
		if err != nil {
			return nil, errors.Wrapf(err, "could not read chunk %d", i)
		}

		if err = c.UploadChunk(ctx, report.Hash, i, data); err != nil {
			return nil, err
		}
		report.Sent++
	}

	if err = c.Merge(ctx, report.Hash, report.FileName, report.Total); err != nil {
		return nil, err
	}

	c.logger.Infof("pushed %s (%s, %d/%d chunk(s) sent)", report.FileName, units.HumanSize(float64(size)), report.Sent, report.Total)
	return report, nil
}

// CheckUploaded returns the server view of the upload hash.
func (c *Client) CheckUploaded(ctx context.Context, hash string) (*Status, error) {
	body, err := json.Marshal(map[string]string{"fileHash": hash})
	if err != nil {
		return nil, err
	}

	var status Status
	err = c.do(ctx, "/checkUploaded", "application/json", body, &status)
	return &status, errors.Wrap(err, "checkUploaded")
}

// UploadChunk sends the chunk index of hash.
func (c *Client) UploadChunk(ctx context.Context, hash string, index int, data []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField("fileHash", hash); err != nil {
		return err
	}
	if err := w.WriteField("chunkIndex", strconv.Itoa(index)); err != nil {
		return err
	}

	part, err := w.CreateFormFile("file", fmt.Sprintf("%s-%d", hash, index))
	if err != nil {
		return err
	}
	if _, err = part.Write(data); err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}

	err = c.do(ctx, "/upload", w.FormDataContentType(), body.Bytes(), nil)
	return errors.Wrapf(err, "upload chunk %d", index)
}

// Merge asks the server to assemble the total chunks of hash into fileName.
func (c *Client) Merge(ctx context.Context, hash, fileName string, total int) error {
	body, err := json.Marshal(map[string]interface{}{
		"fileHash": hash,
		"fileName": fileName,
		"total":    total,
	})
	if err != nil {
		return err
	}

	err = c.do(ctx, "/merge", "application/json", body, nil)
	return errors.Wrap(err, "merge")
}

func (c *Client) do(ctx context.Context, path, contentType string, body []byte, v interface{}) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var m message
		json.NewDecoder(resp.Body).Decode(&m)
		return errors.Errorf("%s: %s", resp.Status, m.Message)
	}

	if v == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(v), "could not decode response")
}
