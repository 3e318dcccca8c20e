package api

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// timeNow 当前时间，测试中可替换
var timeNow = time.Now

// parseDate 支持 2006-01-02 和 RFC3339 两种格式
func parseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("时间格式错误，应为: %s", dateLayout)
	}
	return t, nil
}

// parseOptionalDate 空字符串返回 nil
func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseRange 解析 start_time/end_time，结束日期包含当天
func parseRange(startStr, endStr string) (start, end time.Time, err error) {
	if startStr != "" {
		if start, err = parseDate(startStr); err != nil {
			return start, end, fmt.Errorf("开始%w", err)
		}
	}
	if endStr != "" {
		if end, err = parseDate(endStr); err != nil {
			return start, end, fmt.Errorf("结束%w", err)
		}
		if len(endStr) == len(dateLayout) {
			end = end.Add(24*time.Hour - time.Second)
		}
	}
	return start, end, nil
}

// paginate 默认第 1 页、每页 10 条，上限 100
func paginate[T any](items []T, page, pageSize int) PageResponse {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	total := len(items)
	// 超出末页直接返回空列表，避免 page*pageSize 溢出
	from := total
	if page <= total/pageSize+1 {
		from = min((page-1)*pageSize, total)
	}
	to := from + pageSize
	if to > total {
		to = total
	}
	return PageResponse{
		Total:    int64(total),
		Page:     page,
		PageSize: pageSize,
		List:     items[from:to],
	}
}
