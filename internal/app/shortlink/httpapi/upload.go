package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"filedrop.local/gee"
	"filedrop.local/internal/app/shortlink"
)

const (
	maxUploadBytes  = 100 << 20
	multipartMemory = 8 << 20
)

// NewUploadHandler 接收 multipart 的 file 字段，写对象存储后返回 7 天有效的直链
func NewUploadHandler(s Services) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		ctx.Req.Body = http.MaxBytesReader(ctx.Writer, ctx.Req.Body, maxUploadBytes)

		file, header, err := ctx.FormFile("file", multipartMemory)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				ctx.AbortWithError(http.StatusRequestEntityTooLarge, "file too large")
				return
			}
			ctx.AbortWithError(http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()

		res, err := s.Uploads.Upload(ctx.Req.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
		if err != nil {
			if errors.Is(err, shortlink.ErrValidation) {
				ctx.AbortWithError(http.StatusBadRequest, err.Error())
				return
			}
			slog.ErrorContext(ctx.Req.Context(), "upload failed", "err", err)
			ctx.AbortWithError(http.StatusInternalServerError, "failed to upload file")
			return
		}
		ctx.JSON(http.StatusOK, res)
	}
}
