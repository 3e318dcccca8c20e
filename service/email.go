package service

import (
	"fmt"

	"financify/config"

	"gopkg.in/gomail.v2"
)

// EmailService 邮件服务
type EmailService struct {
	cfg *config.EmailConfig
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// Enabled 是否已启用
func (s *EmailService) Enabled() bool {
	return s.cfg != nil && s.cfg.Enabled
}

// SendBudgetAlertEmail 发送预算预警邮件
func (s *EmailService) SendBudgetAlertEmail(toEmail string, st BudgetStatus) error {
	if !s.Enabled() {
		return fmt.Errorf("邮件服务未启用，请配置 FINANCIFY_EMAIL_ENABLED=true")
	}

	subject := fmt.Sprintf("【Financify】%s 预算已使用 %.0f%%", st.Budget.Category, st.Percentage)
	if st.Exceeded {
		subject = fmt.Sprintf("【Financify】%s 预算已超支", st.Budget.Category)
	}
	return s.sendEmail(toEmail, subject, s.generateBudgetAlertBody(st))
}

// generateBudgetAlertBody 生成预算预警邮件内容
func (s *EmailService) generateBudgetAlertBody(st BudgetStatus) string {
	color, title := "#f59e0b", "预算即将用完"
	if st.Exceeded {
		color, title = "#dc2626", "预算已超支"
	}
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Microsoft YaHei', Arial, sans-serif; background: #f5f5f5; margin: 0; padding: 20px; }
        .container { max-width: 600px; margin: 0 auto; background: #fff; border-radius: 12px; overflow: hidden; box-shadow: 0 4px 20px rgba(0,0,0,0.1); }
        .header { background: %s; color: white; padding: 30px; text-align: center; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { padding: 40px 30px; }
        .content p { color: #333; line-height: 1.8; margin: 0 0 20px; }
        table { width: 100%%; border-collapse: collapse; }
        td { padding: 10px; border-bottom: 1px solid #eee; }
        .footer { background: #f8f9fa; padding: 20px 30px; text-align: center; color: #6c757d; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>%s</h1>
        </div>
        <div class="content">
            <p>您的 <strong>%s</strong> 预算（周期 %s）使用情况如下：</p>
            <table>
                <tr><td>预算金额</td><td>%.2f</td></tr>
                <tr><td>已支出</td><td>%.2f</td></tr>
                <tr><td>剩余</td><td>%.2f</td></tr>
                <tr><td>使用比例</td><td>%.2f%%</td></tr>
            </table>
        </div>
        <div class="footer">
            <p>此邮件由系统自动发送，请勿回复</p>
            <p>© Financify - 您的个人财务管理助手</p>
        </div>
    </div>
</body>
</html>
`, color, title, st.Budget.Category, st.PeriodKey, st.Budget.Limit, st.Spent, st.Remaining, st.Percentage)
}

// sendEmail 发送邮件
func (s *EmailService) sendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.Username, s.cfg.From))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	return nil
}

// SendTestEmail 发送测试邮件
func (s *EmailService) SendTestEmail(toEmail string) error {
	if !s.Enabled() {
		return fmt.Errorf("邮件服务未启用")
	}

	subject := "【Financify】邮件配置测试"
	body := `
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; padding: 20px;">
    <h2>✅ 邮件配置成功</h2>
    <p>如果您收到这封邮件，说明预算预警邮件可以正常发送。</p>
    <p style="color: #666;">Financify</p>
</body>
</html>
`
	return s.sendEmail(toEmail, subject, body)
}
