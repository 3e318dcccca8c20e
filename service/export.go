package service

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"financify/models"
)

const dateTimeLayout = "2006-01-02 15:04:05"

// ExportService 交易导出
type ExportService struct{}

// NewExportService 创建导出服务
func NewExportService() *ExportService {
	return &ExportService{}
}

func typeLabel(t string) string {
	if t == models.TransactionTypeIncome {
		return "收入"
	}
	return "支出"
}

// CSV 导出为带 BOM 的 CSV，Excel 打开中文不乱码
func (s *ExportService) CSV(txs []models.Transaction) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteString("\xEF\xBB\xBF")

	writer := csv.NewWriter(buf)
	headers := []string{"ID", "类型", "金额", "分类", "描述", "账户", "日期", "创建时间"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("生成 CSV 失败: %w", err)
	}
	for _, t := range txs {
		row := []string{
			t.ID,
			typeLabel(t.Type),
			fmt.Sprintf("%.2f", t.Amount),
			t.Category,
			t.Description,
			t.AccountID,
			t.Date.Format(dateTimeLayout),
			t.CreatedAt.Format(dateTimeLayout),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("生成 CSV 失败: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("生成 CSV 失败: %w", err)
	}
	return buf.Bytes(), nil
}

// JSONExport JSON 导出内容
type JSONExport struct {
	Start        string               `json:"start_time"`
	End          string               `json:"end_time"`
	TotalCount   int                  `json:"total_count"`
	TotalIncome  float64              `json:"total_income"`
	TotalExpense float64              `json:"total_expense"`
	Transactions []models.Transaction `json:"transactions"`
}

// JSON 导出为带汇总信息的 JSON
func (s *ExportService) JSON(txs []models.Transaction, start, end time.Time) ([]byte, error) {
	sum := Summarize(txs)
	out := JSONExport{
		Start:        start.Format("2006-01-02"),
		End:          end.Format("2006-01-02"),
		TotalCount:   len(txs),
		TotalIncome:  sum.TotalIncome,
		TotalExpense: sum.TotalExpense,
		Transactions: txs,
	}
	return json.MarshalIndent(out, "", "  ")
}

var cellBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
}

// Excel 导出为 xlsx，表头加粗着色，末尾附合计行
func (s *ExportService) Excel(txs []models.Transaction) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "交易记录"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    cellBorder,
	})
	if err != nil {
		return nil, err
	}
	dataStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    cellBorder,
	})
	if err != nil {
		return nil, err
	}
	summaryStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFC000"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    cellBorder,
	})
	if err != nil {
		return nil, err
	}

	widths := map[string]float64{"A": 40, "B": 8, "C": 14, "D": 14, "E": 30, "F": 20}
	for col, w := range widths {
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return nil, err
		}
	}

	headers := []string{"ID", "类型", "金额", "分类", "描述", "日期"}
	for i, h := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for i, t := range txs {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), t.ID)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), typeLabel(t.Type))
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), t.SignedAmount())
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), t.Category)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), t.Description)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), t.Date.Format(dateTimeLayout))
		f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("F%d", row), dataStyle)
	}

	sum := Summarize(txs)
	summaryRow := len(txs) + 2
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "合计")
	f.MergeCell(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("B%d", summaryRow))
	f.SetCellValue(sheet, fmt.Sprintf("C%d", summaryRow), sum.Balance)
	f.SetCellValue(sheet, fmt.Sprintf("D%d", summaryRow), fmt.Sprintf("共 %d 条记录", len(txs)))
	f.SetCellValue(sheet, fmt.Sprintf("E%d", summaryRow), fmt.Sprintf("收入 %.2f / 支出 %.2f", sum.TotalIncome, sum.TotalExpense))
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("F%d", summaryRow), summaryStyle)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("生成 Excel 失败: %w", err)
	}
	return buf.Bytes(), nil
}
