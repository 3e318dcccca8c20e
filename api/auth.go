package api

import (
	"errors"
	"strings"

	"financify/config"
	"financify/database"
	"financify/middleware"
	"financify/models"
	"financify/service"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SyncSummary 用户的同步概况
type SyncSummary interface {
	SyncStatus(userID uint) service.SyncStatus
}

// AuthHandler 账号与会话
type AuthHandler struct {
	cfg          *config.Config
	emailService *service.EmailService
	sync         SyncSummary
}

// NewAuthHandler 创建认证处理器，sync 为空时登录与资料接口不返回同步概况
func NewAuthHandler(cfg *config.Config, sync SyncSummary) *AuthHandler {
	return &AuthHandler{
		cfg:          cfg,
		emailService: service.NewEmailService(&cfg.Email),
		sync:         sync,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50" example:"alice"`
	Password string `json:"password" binding:"required,min=6,max=50" example:"password123"`
	Email    string `json:"email" binding:"omitempty,email" example:"alice@example.com"`
}

// LoginRequest 登录请求，username 也可以填邮箱
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"alice"`
	Password string `json:"password" binding:"required" example:"password123"`
}

// Session 登录与资料接口的返回。Sync 为该用户在本实例上尚未同步的离线数据概况，
// 客户端据此决定是否先触发同步
type Session struct {
	Token string              `json:"token,omitempty"`
	User  models.User         `json:"user"`
	Sync  *service.SyncStatus `json:"sync,omitempty"`
}

func (h *AuthHandler) session(token string, user models.User) Session {
	s := Session{Token: token, User: user}
	if h.sync != nil {
		st := h.sync.SyncStatus(user.ID)
		s.Sync = &st
	}
	return s
}

// currentUser 读取当前登录用户，不存在时已写入 404
func currentUser(c *gin.Context) (*models.User, bool) {
	var user models.User
	if err := database.DB.First(&user, middleware.GetCurrentUserID(c)).Error; err != nil {
		NotFound(c, "用户不存在")
		return nil, false
	}
	return &user, true
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hashed), err
}

// Register 注册
// @Summary 注册
// @Description 用户名和邮箱都不能与已有账号重复，邮箱用于接收预算预警
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "注册信息"
// @Success 200 {object} Response{data=models.User} "注册成功"
// @Failure 400 {object} Response "用户名或邮箱已存在"
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	query := database.DB.Where("username = ?", req.Username)
	if req.Email != "" {
		query = query.Or("email = ?", req.Email)
	}
	var existing models.User
	err := query.First(&existing).Error
	switch {
	case err == nil && existing.Username == req.Username:
		BadRequest(c, "用户名已存在")
		return
	case err == nil:
		BadRequest(c, "邮箱已被使用")
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		InternalError(c, SafeErrorMessage(err, "查询用户失败"))
		return
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		InternalError(c, "密码加密失败")
		return
	}
	user := models.User{Username: req.Username, Password: hashed, Email: req.Email, Status: models.UserStatusActive}
	if err := database.DB.Create(&user).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "创建用户失败"))
		return
	}
	SuccessWithMessage(c, "注册成功", user)
}

// Login 登录
// @Summary 登录
// @Description 返回 JWT 以及该用户尚未同步的离线操作和暂存写入数量
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录信息"
// @Success 200 {object} Response{data=Session} "登录成功"
// @Failure 401 {object} Response "用户名或密码错误"
// @Failure 403 {object} Response "账号已锁定"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	var user models.User
	if err := database.DB.Where("username = ? OR email = ?", req.Username, req.Username).First(&user).Error; err != nil {
		Unauthorized(c, "用户名或密码错误")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		Unauthorized(c, "用户名或密码错误")
		return
	}
	if user.Status != models.UserStatusActive {
		Forbidden(c, "账号已锁定")
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Username, h.cfg.JWT.ExpireTime)
	if err != nil {
		InternalError(c, "生成 token 失败")
		return
	}
	Success(c, h.session(token, user))
}

// GetProfile 当前用户资料与同步概况
// @Summary 当前用户资料
// @Tags 认证
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=Session} "获取成功"
// @Failure 404 {object} Response "用户不存在"
// @Router /api/v1/auth/profile [get]
func (h *AuthHandler) GetProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	Success(c, h.session("", *user))
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required" example:"password123"`
	NewPassword string `json:"new_password" binding:"required,min=6,max=50" example:"password456"`
}

// ChangePassword 修改密码
// @Summary 修改密码
// @Tags 认证
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "密码信息"
// @Success 200 {object} Response "修改成功"
// @Failure 400 {object} Response "新旧密码相同"
// @Failure 401 {object} Response "原密码错误"
// @Router /api/v1/auth/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if req.NewPassword == req.OldPassword {
		BadRequest(c, "新密码不能与原密码相同")
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.OldPassword)) != nil {
		Unauthorized(c, "原密码错误")
		return
	}
	hashed, err := hashPassword(req.NewPassword)
	if err != nil {
		InternalError(c, "密码加密失败")
		return
	}
	if err := database.DB.Model(user).Update("password", hashed).Error; err != nil {
		InternalError(c, "更新密码失败")
		return
	}
	SuccessWithMessage(c, "密码修改成功", nil)
}

// UpdateEmailRequest 修改邮箱请求
type UpdateEmailRequest struct {
	Email string `json:"email" binding:"required,email" example:"test@example.com"`
}

// UpdateEmail 修改预警邮箱
// @Summary 修改邮箱
// @Description 预算预警邮件发送到该邮箱
// @Tags 认证
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateEmailRequest true "邮箱"
// @Success 200 {object} Response "修改成功"
// @Router /api/v1/auth/email [put]
func (h *AuthHandler) UpdateEmail(c *gin.Context) {
	var req UpdateEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请输入有效的邮箱地址")
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := database.DB.Model(user).Update("email", strings.ToLower(req.Email)).Error; err != nil {
		InternalError(c, "更新邮箱失败")
		return
	}
	SuccessWithMessage(c, "邮箱修改成功", nil)
}

// SendTestEmail 发送测试邮件
// @Summary 发送测试邮件
// @Description 向当前用户邮箱发送测试邮件，检查预警邮件配置
// @Tags 认证
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response "发送成功"
// @Failure 400 {object} Response "未设置邮箱"
// @Router /api/v1/auth/test-email [post]
func (h *AuthHandler) SendTestEmail(c *gin.Context) {
	email, err := LookupUserEmail(middleware.GetCurrentUserID(c))
	if err != nil {
		NotFound(c, "用户不存在")
		return
	}
	if email == "" {
		BadRequest(c, "请先设置邮箱")
		return
	}
	if err := h.emailService.SendTestEmail(email); err != nil {
		InternalError(c, SafeErrorMessage(err, "邮件发送失败"))
		return
	}
	SuccessWithMessage(c, "发送成功", nil)
}

// LookupUserEmail 查询用户邮箱，供预算预警使用
func LookupUserEmail(userID uint) (string, error) {
	if database.DB == nil {
		return "", errors.New("数据库未初始化")
	}
	var user models.User
	if err := database.DB.Select("email").First(&user, userID).Error; err != nil {
		return "", err
	}
	return user.Email, nil
}
