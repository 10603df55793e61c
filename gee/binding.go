package gee

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var (
	ErrEmptyBody    = errors.New("gee: empty request body")
	ErrTrailingData = errors.New("gee: body must contain a single JSON value")
)

// ShouldBindJSON 严格解码：未知字段、空 body、多余的 JSON 值都报错，不写响应
func (c *Context) ShouldBindJSON(dst any) error {
	dec := json.NewDecoder(c.Req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return ErrTrailingData
	}
	return nil
}

// BindJSON 失败时直接回 400
func (c *Context) BindJSON(dst any) error {
	err := c.ShouldBindJSON(dst)
	if err != nil {
		c.AbortWithError(http.StatusBadRequest, "Invalid json")
	}
	return err
}
