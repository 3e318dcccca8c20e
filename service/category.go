package service

import (
	"context"
	"fmt"
	"strings"

	"financify/models"
	"financify/remote"
	"financify/resilient"
)

// CategoryList 分类列表及数据来源
type CategoryList struct {
	Categories []models.Category `json:"categories"`
	Source     string            `json:"source"`
}

// CategoryService 分类服务，读写直接经过容错包装，离线写入暂存为 pending_categories_*
type CategoryService struct {
	deps Deps
}

// NewCategoryService 创建分类服务
func NewCategoryService(deps Deps) *CategoryService {
	return &CategoryService{deps: deps}
}

func validateCategory(c *models.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: 分类名称不能为空", ErrValidation)
	}
	if !models.ValidTransactionType(c.Type) {
		return fmt.Errorf("%w: 分类类型必须为 income 或 expense", ErrValidation)
	}
	if c.Color == "" {
		c.Color = models.DefaultCategoryColor
	}
	return nil
}

func defaultCategories(userID uint, kind string) []models.Category {
	kinds := []string{models.TransactionTypeExpense, models.TransactionTypeIncome}
	if kind != "" {
		kinds = []string{kind}
	}
	out := make([]models.Category, 0)
	for _, k := range kinds {
		for _, name := range models.GetDefaultCategories(k) {
			out = append(out, models.Category{UserID: userID, Name: name, Type: k, Color: models.DefaultCategoryColor})
		}
	}
	return out
}

// List 用户分类，kind 为空时返回全部类型；用户尚无分类时返回内置默认分类
func (s *CategoryService) List(ctx context.Context, userID uint, kind string) (*CategoryList, error) {
	filters := remote.Filters{remote.Eq("user_id", userID)}
	if kind != "" {
		filters = append(filters, remote.Eq("type", kind))
	}
	res := s.deps.Wrapper.Fetch(ctx, TableCategories, filters)
	cats, err := remote.DecodeRows[models.Category](res.Rows)
	if err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		return &CategoryList{Categories: defaultCategories(userID, kind), Source: "default"}, nil
	}
	sortBy(cats, func(a, b *models.Category) bool {
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Name < b.Name
	})
	return &CategoryList{Categories: cats, Source: res.Source}, nil
}

// Create 创建分类，同类型下名称不能重复
func (s *CategoryService) Create(ctx context.Context, userID uint, c *models.Category) (*models.Category, error) {
	if err := validateCategory(c); err != nil {
		return nil, err
	}
	list, err := s.List(ctx, userID, c.Type)
	if err != nil {
		return nil, err
	}
	if list.Source != "default" {
		for _, existing := range list.Categories {
			if existing.Name == c.Name {
				return nil, fmt.Errorf("%w: 分类 %s 已存在", ErrValidation, c.Name)
			}
		}
	}

	c.ID = ""
	c.UserID = userID
	c.CreatedAt = s.deps.now()
	row, err := remote.ToRow(c)
	if err != nil {
		return nil, err
	}
	delete(row, "id")
	res, err := s.deps.Wrapper.Insert(ctx, TableCategories, row)
	if err != nil {
		return nil, fmt.Errorf("保存分类失败: %w", err)
	}
	return decodeCategory(res)
}

// Update 更新分类名称与颜色
func (s *CategoryService) Update(ctx context.Context, userID uint, id string, c *models.Category) (*models.Category, error) {
	if err := validateCategory(c); err != nil {
		return nil, err
	}
	filters := remote.Filters{remote.Eq("id", id), remote.Eq("user_id", userID)}
	res, err := s.deps.Wrapper.Update(ctx, TableCategories, filters, remote.Row{
		"name":  c.Name,
		"type":  c.Type,
		"color": c.Color,
	})
	if err != nil {
		return nil, fmt.Errorf("更新分类失败: %w", err)
	}
	if !res.Pending && len(res.Rows) == 0 {
		return nil, ErrNotFound
	}
	out, err := decodeCategory(res)
	if err != nil {
		return nil, err
	}
	out.ID = id
	out.UserID = userID
	return out, nil
}

// Delete 删除分类，已有交易的分类字段不受影响
func (s *CategoryService) Delete(ctx context.Context, userID uint, id string) error {
	filters := remote.Filters{remote.Eq("id", id), remote.Eq("user_id", userID)}
	if _, err := s.deps.Wrapper.Delete(ctx, TableCategories, filters); err != nil {
		return fmt.Errorf("删除分类失败: %w", err)
	}
	return nil
}

// PendingWrites 尚未回放的分类写入
func (s *CategoryService) PendingWrites() ([]resilient.PendingWrite, error) {
	all, err := s.deps.Wrapper.PendingWrites()
	if err != nil {
		return nil, err
	}
	out := make([]resilient.PendingWrite, 0)
	for _, p := range all {
		if p.Table == TableCategories {
			out = append(out, p)
		}
	}
	return out, nil
}

func decodeCategory(res resilient.WriteResult) (*models.Category, error) {
	row := res.Row()
	if row == nil {
		return nil, ErrNotFound
	}
	var c models.Category
	if err := remote.Decode(row, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
