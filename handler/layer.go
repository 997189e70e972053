package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/peterz0310/image-placer-sub000/config"
	"github.com/peterz0310/image-placer-sub000/geometry"
	"github.com/peterz0310/image-placer-sub000/model"
	"github.com/peterz0310/image-placer-sub000/service"
	"github.com/peterz0310/image-placer-sub000/utils"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

type LayerHandler struct {
	cfg          *config.Config
	redisService *service.RedisService
	layerService *service.LayerService
}

func NewLayerHandler(cfg *config.Config, redis *service.RedisService, layers *service.LayerService) *LayerHandler {
	return &LayerHandler{
		cfg:          cfg,
		redisService: redis,
		layerService: layers,
	}
}

// Register 注册图层相关路由
func (h *LayerHandler) Register(api *gin.RouterGroup) {
	api.POST("/select", h.Select)
	api.POST("/detect", h.Detect)
	api.POST("/mask", h.Mask)
	api.GET("/mask/:key", h.GetMask)
	api.POST("/path", h.Path)
}

// selectionKey 选区缓存键的组成部分
type selectionKey struct {
	MD5       string  `json:"md5"`
	SeedX     float64 `json:"seed_x"`
	SeedY     float64 `json:"seed_y"`
	Tolerance float64 `json:"tolerance"`
	Vertices  int     `json:"vertices"`
}

// Select 颜色选区
func (h *LayerHandler) Select(c *gin.Context) {
	img, md5, ok := h.readImage(c)
	if !ok {
		return
	}

	seedX, errX := strconv.ParseFloat(c.PostForm("seed_x"), 64)
	seedY, errY := strconv.ParseFloat(c.PostForm("seed_y"), 64)
	if errX != nil || errY != nil {
		badRequest(c, "种子点参数无效", errors.Join(errX, errY))
		return
	}
	tolerance, err := strconv.ParseFloat(c.DefaultPostForm("tolerance", "-1"), 64)
	if err != nil {
		badRequest(c, "容差参数无效", err)
		return
	}
	vertices, err := strconv.Atoi(c.DefaultPostForm("vertices", "0"))
	if err != nil {
		badRequest(c, "顶点数参数无效", err)
		return
	}
	if tolerance < 0 {
		tolerance = h.cfg.Selection.Tolerance
	}
	if vertices <= 0 {
		vertices = h.cfg.Selection.Vertices
	}

	ctx := c.Request.Context()
	cacheKey, err := utils.JSONMD5(selectionKey{md5, seedX, seedY, tolerance, vertices})
	if err != nil {
		internalError(c, "生成缓存键失败", err)
		return
	}

	cached, err := h.redisService.GetSelection(ctx, cacheKey)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
	}
	if cached != nil {
		utils.Logger.Info("cache hit", zap.String("cache_key", cacheKey))
		c.JSON(http.StatusOK, model.Response{
			Success: true,
			Message: "选区成功（来自缓存）",
			Data:    cached,
		})
		return
	}

	result, err := h.layerService.SelectRegion(ctx, img, md5,
		geometry.Point{X: seedX, Y: seedY}, tolerance, vertices)
	if err != nil {
		h.fail(c, "选区失败", err)
		return
	}

	if err := h.redisService.SetSelection(ctx, cacheKey, result); err != nil {
		utils.Logger.Warn("failed to set cache", zap.Error(err))
	}

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Message: "选区成功",
		Data:    result,
	})
}

// Detect 目标检测并解码实例多边形
func (h *LayerHandler) Detect(c *gin.Context) {
	img, md5, ok := h.readImage(c)
	if !ok {
		return
	}

	vertices, err := strconv.Atoi(c.DefaultPostForm("vertices", "0"))
	if err != nil {
		badRequest(c, "顶点数参数无效", err)
		return
	}
	opts := service.ProcessOptions{Vertices: vertices}
	// 未提供 expand 时使用配置值，显式传0表示不扩张
	if raw, ok := c.GetPostForm("expand"); ok {
		expand, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, "扩张参数无效", err)
			return
		}
		opts.ExpandPercent = &expand
	}

	result, err := h.layerService.DetectObjects(c.Request.Context(), img, md5, opts)
	if err != nil {
		h.fail(c, "检测失败", err)
		return
	}

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Message: "检测成功",
		Data:    result,
	})
}

// Mask 栅格化图层掩码
func (h *LayerHandler) Mask(c *gin.Context) {
	var req model.MaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数无效", err)
		return
	}

	ctx := c.Request.Context()
	cacheKey, err := utils.JSONMD5(req)
	if err != nil {
		internalError(c, "生成缓存键失败", err)
		return
	}

	cached, err := h.redisService.GetMask(ctx, cacheKey)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
	}
	if cached != nil {
		utils.Logger.Info("cache hit", zap.String("cache_key", cacheKey))
		c.JSON(http.StatusOK, model.Response{
			Success: true,
			Message: "生成成功（来自缓存）",
			Data:    cached,
		})
		return
	}

	result, err := h.layerService.RenderMask(ctx, &req)
	if err != nil {
		h.fail(c, "掩码生成失败", err)
		return
	}
	result.Key = cacheKey

	if err := h.redisService.SetMask(ctx, cacheKey, result); err != nil {
		utils.Logger.Warn("failed to set cache", zap.Error(err))
	}

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Message: "生成成功",
		Data:    result,
	})
}

// GetMask 根据缓存键获取掩码
func (h *LayerHandler) GetMask(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "缓存键参数缺失",
		})
		return
	}

	result, err := h.redisService.GetMask(context.Background(), key)
	if err != nil {
		utils.Logger.Error("failed to get mask", zap.Error(err))
		internalError(c, "查询失败", err)
		return
	}

	if result == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "未找到该掩码",
		})
		return
	}

	if err := h.layerService.VerifyMask(result); err != nil {
		utils.Logger.Error("cached mask is corrupt", zap.String("key", key), zap.Error(err))
		internalError(c, "掩码数据损坏", err)
		return
	}

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Message: "查询成功",
		Data:    result,
	})
}

// Path 导出烘焙路径
func (h *LayerHandler) Path(c *gin.Context) {
	var req model.PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数无效", err)
		return
	}
	if !req.Shape.Control.Valid() {
		badRequest(c, "多边形至少需要3个顶点", nil)
		return
	}

	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Message: "导出成功",
		Data:    h.layerService.BakePath(&req),
	})
}

// readImage 读取并校验上传的图片，失败时已写入响应
func (h *LayerHandler) readImage(c *gin.Context) (image.Image, string, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.Error(err))
		badRequest(c, "请上传图片文件", err)
		return nil, "", false
	}

	// 验证文件大小
	if file.Size > h.cfg.Upload.MaxSize {
		badRequest(c, fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)), nil)
		return nil, "", false
	}

	// 验证文件类型
	if !h.isAllowedType(file.Header.Get("Content-Type")) {
		badRequest(c, "不支持的文件类型，仅支持 JPEG/PNG/WebP", nil)
		return nil, "", false
	}

	f, err := file.Open()
	if err != nil {
		internalError(c, "读取文件失败", err)
		return nil, "", false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.cfg.Upload.MaxSize))
	if err != nil {
		internalError(c, "读取文件失败", err)
		return nil, "", false
	}
	md5 := utils.BytesMD5(data)

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		badRequest(c, "图片解码失败", err)
		return nil, "", false
	}

	utils.Logger.Info("file uploaded",
		zap.String("filename", file.Filename),
		zap.String("md5", md5),
		zap.String("format", format),
		zap.Int64("size", file.Size))

	return img, md5, true
}

func (h *LayerHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

// fail 按错误类型选择状态码
func (h *LayerHandler) fail(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNoSelection), errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrQueueFull):
		status = http.StatusServiceUnavailable
		message = "处理队列已满，请稍后重试"
	case errors.Is(err, service.ErrDetectorFailed):
		status = http.StatusBadGateway
	}

	utils.Logger.Error("request failed", zap.Error(err), zap.Int("status", status))
	c.JSON(status, model.ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}

func badRequest(c *gin.Context, message string, err error) {
	resp := model.ErrorResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

func internalError(c *gin.Context, message string, err error) {
	c.JSON(http.StatusInternalServerError, model.ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}
