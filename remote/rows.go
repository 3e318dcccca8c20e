package remote

import (
	"encoding/json"
	"fmt"
)

// ToRow 将实体结构体转换为一行数据
func ToRow(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化行数据失败: %w", err)
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("转换行数据失败: %w", err)
	}
	return row, nil
}

// Decode 将一行数据解析到实体结构体
func Decode(row Row, v any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("序列化行数据失败: %w", err)
	}
	return json.Unmarshal(data, v)
}

// DecodeRows 批量解析
func DecodeRows[T any](rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		var item T
		if err := Decode(r, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// ID 返回行的 id 字段
func (r Row) ID() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Clone 浅拷贝
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
