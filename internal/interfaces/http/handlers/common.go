// Package handlers binds the case engine's application services to gin
// routes.  Every response uses the APIResponse envelope.
package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/casemind/internal/application/similarity"
	"github.com/turtacn/casemind/internal/interfaces/http/middleware"
	"github.com/turtacn/casemind/pkg/errors"
	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// MaxUploadBytes bounds an uploaded document.
	MaxUploadBytes = 32 << 20

	uploadField = "file"
)

func envelope[T any](c *gin.Context, data T) pkgtypes.APIResponse[T] {
	return pkgtypes.APIResponse[T]{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetRequestID(c),
		Timestamp: pkgtypes.Timestamp(time.Now().UTC()),
	}
}

// respond writes data in a success envelope.
func respond[T any](c *gin.Context, status int, data T) {
	c.JSON(status, envelope(c, data))
}

// respondPage writes a page of items with the pagination block filled.
func respondPage[T any](c *gin.Context, page *pkgtypes.PageResponse[T]) {
	resp := envelope(c, page.Items)
	resp.Pagination = &pkgtypes.Pagination{Page: page.Page, PageSize: page.PageSize, Total: page.Total}
	c.JSON(http.StatusOK, resp)
}

// respondError maps err to its HTTP status.  Server-side failures are masked
// with the code's default message; the original error is attached to the gin
// context for the request log.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	code := errors.GetCode(err)
	if code == errors.CodeUnknown || code == errors.CodeOK {
		code = errors.ErrCodeInternal
	}
	status := errors.HTTPStatusForCode(code)

	detail := &pkgtypes.ErrorDetail{Code: string(code), Message: errors.DefaultMessageForCode(code)}
	var ae *errors.AppError
	if status < http.StatusInternalServerError && errors.As(err, &ae) {
		detail.Message = ae.Message
		if ae.Detail != "" {
			detail.Details = map[string]interface{}{"detail": ae.Detail}
		}
	}

	c.AbortWithStatusJSON(status, pkgtypes.APIResponse[any]{
		Success:   false,
		Error:     detail,
		RequestID: middleware.GetRequestID(c),
		Timestamp: pkgtypes.Timestamp(time.Now().UTC()),
	})
}

// bindJSON decodes the body into dst, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "malformed request body"))
		return false
	}
	return true
}

// parsePagination reads page and page_size.  Invalid values fall back to
// the defaults; page_size is capped.
func parsePagination(c *gin.Context) pkgtypes.Pagination {
	p := pkgtypes.Pagination{Page: 1, PageSize: defaultPageSize}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 {
		p.PageSize = min(v, maxPageSize)
	}
	return p
}

// parseOptions reads top_k, threshold and use_metadata from the query
// string.  Absent values keep their zero defaults.
func parseOptions(c *gin.Context) (similarity.Options, error) {
	var opts similarity.Options
	if v := c.Query("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, errors.InvalidParam("top_k must be an integer")
		}
		opts.TopK = n
	}
	if v := c.Query("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, errors.New(errors.ErrCodeThresholdInvalid, "threshold must be a number")
		}
		opts.Threshold = f
	}
	if v := c.Query("use_metadata"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.InvalidParam("use_metadata must be a boolean")
		}
		opts.UseMetadataQuery = b
	}
	return opts, opts.Validate()
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

// readUpload returns the name and bytes of the multipart "file" field.
func readUpload(c *gin.Context) (string, []byte, error) {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		return "", nil, errors.InvalidParam("multipart field \"file\" is required")
	}
	if fh.Size > MaxUploadBytes {
		return "", nil, errors.Validation("uploaded file exceeds size limit").WithDetail(fh.Filename)
	}
	data, err := readFile(fh)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.ErrCodeBadRequest, "read uploaded file")
	}
	if len(data) == 0 {
		return "", nil, errors.InvalidParam("uploaded file is empty")
	}
	return fh.Filename, data, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, MaxUploadBytes))
}

//Personal.AI order the ending
