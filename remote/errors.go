package remote

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// RemoteError 后端返回的错误，Code 为 PostgREST 错误码或 Postgres SQLSTATE
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%s): %s", e.Code, e.Message)
}

// postgrest-go 将 4xx/5xx 响应格式化为 "(code) message"
var postgrestErrPattern = regexp.MustCompile(`^\(([0-9A-Za-z]+)\) (.*)$`)

// WrapError 将客户端错误解析为 RemoteError，无法识别时原样返回
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	if m := postgrestErrPattern.FindStringSubmatch(err.Error()); m != nil {
		return &RemoteError{Code: m[1], Message: m[2]}
	}
	return err
}

// IsRetryable 判断错误是否值得重试。
// 网络错误、超时、连接类/资源类 SQLSTATE 可重试；约束冲突、数据校验、权限等为永久错误。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var re *RemoteError
	if !errors.As(err, &re) {
		return true
	}
	code := re.Code
	if strings.HasPrefix(code, "PGRST") {
		// PGRST0xx 为连接池/数据库连接失败
		return strings.HasPrefix(code, "PGRST0")
	}
	if len(code) < 2 {
		return true
	}
	switch code[:2] {
	case "08", // connection exception
		"40", // transaction rollback / serialization failure
		"53", // insufficient resources
		"57", // operator intervention
		"58": // system error
		return true
	}
	return false
}

// IsPermanent 永久错误，不应重试也不应入队
func IsPermanent(err error) bool {
	return err != nil && !IsRetryable(err)
}
