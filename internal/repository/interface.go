package repository

import "gorm.io/gorm"

// BaseRepo 基础仓储实现
type BaseRepo struct {
	db *gorm.DB
}

// GetDB 获取数据库实例
func (r *BaseRepo) GetDB() *gorm.DB {
	return r.db
}
