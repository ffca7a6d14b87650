package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// identity propaga a identidade já autenticada pela borda (emissão de
// token fora do escopo deste serviço) para o contexto da requisição
func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", c.GetHeader("X-User-ID"))
		c.Set("user_role", c.GetHeader("X-User-Role"))
		c.Next()
	}
}

// requireAdmin rejeita requisições sem o papel admin
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("user_role") != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}
