// cmd/tributario/main.go
package main

import (
	"log"
	"os"

	"tributario-service/internal/api/handlers"
	"tributario-service/internal/api/responses"
	"tributario-service/internal/core/cst"
	"tributario-service/internal/core/nfe"
	"tributario-service/internal/core/reforma"
	"tributario-service/internal/core/regras"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Print("Arquivo .env não encontrado, prosseguindo com variáveis de ambiente")
	}

	responses.InitLogger()
	logger := responses.Logger()

	parser := nfe.NewParser(logger)
	reformaService := reforma.NewService(logger, parser, carregarAliquotas(logger))
	loader := cst.NewLoader()
	comparativoHandler := handlers.NewComparativoHandler(reformaService, loader)

	router := gin.Default()

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/comparativo", comparativoHandler.HandleComparativo)
		apiV1.POST("/comparativo/csv", comparativoHandler.HandleComparativoCSV)
		apiV1.POST("/comparativo/xlsx", comparativoHandler.HandleComparativoXLSX)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP", "service": "tributario-service"})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8084"
	}
	log.Printf("🚀 Tributário Service (Go) iniciado e escutando na porta %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Falha ao iniciar o servidor de comparativo tributário: ", err)
	}
}

// carregarAliquotas lê a tabela de alíquotas legadas do arquivo apontado por
// ALIQUOTAS_JSON, quando definido. Qualquer falha mantém a tabela embutida.
func carregarAliquotas(logger *zap.Logger) *regras.TabelaAliquotas {
	caminho := os.Getenv("ALIQUOTAS_JSON")
	if caminho == "" {
		return nil
	}

	arquivo, err := os.Open(caminho)
	if err != nil {
		logger.Warn("tabela de alíquotas não carregada, usando a embutida",
			zap.String("caminho", caminho), zap.Error(err))
		return nil
	}
	defer arquivo.Close()

	tabela, err := regras.CarregarJSON(arquivo)
	if err != nil {
		logger.Warn("tabela de alíquotas inválida, usando a embutida",
			zap.String("caminho", caminho), zap.Error(err))
		return nil
	}

	logger.Info("tabela de alíquotas carregada", zap.String("caminho", caminho))
	return tabela
}
