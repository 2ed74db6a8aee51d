// internal/api/handlers/comparativo_handler.go
package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"tributario-service/internal/api/responses"
	"tributario-service/internal/core/cst"
	"tributario-service/internal/core/reforma"
	"tributario-service/internal/core/relatorio"
	"tributario-service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ComparativoHandler lida com as requisições de comparativo tributário
// (tributação atual x CBS+IBS).
type ComparativoHandler struct {
	service reforma.Service
	loader  *cst.Loader
}

// NewComparativoHandler cria um novo handler de comparativos.
func NewComparativoHandler(service reforma.Service, loader *cst.Loader) *ComparativoHandler {
	return &ComparativoHandler{
		service: service,
		loader:  loader,
	}
}

// HandleComparativo processa a planilha CST e os XMLs enviados e devolve o
// comparativo em JSON.
func (h *ComparativoHandler) HandleComparativo(c *gin.Context) {
	lote, status, msg, detalhes := h.processarLote(c)
	if lote == nil {
		responses.Error(c, status, msg, detalhes...)
		return
	}

	mensagem := fmt.Sprintf("Comparativo concluído: %d processado(s), %d falha(s)", lote.Processados, lote.Falhas)
	responses.Success(c, lote, mensagem)
}

// HandleComparativoCSV devolve o detalhamento do comparativo como CSV com
// valores em formato monetário brasileiro.
func (h *ComparativoHandler) HandleComparativoCSV(c *gin.Context) {
	lote, status, msg, detalhes := h.processarLote(c)
	if lote == nil {
		responses.Error(c, status, msg, detalhes...)
		return
	}

	saida, err := relatorio.GerarCSV(lote)
	if err != nil {
		responses.Error(c, http.StatusInternalServerError, "Erro ao gerar relatório CSV", err.Error())
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+relatorio.NomeArquivo("csv"))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", saida)
}

// HandleComparativoXLSX devolve o comparativo como planilha Excel com abas de
// resumo e detalhamento.
func (h *ComparativoHandler) HandleComparativoXLSX(c *gin.Context) {
	lote, status, msg, detalhes := h.processarLote(c)
	if lote == nil {
		responses.Error(c, status, msg, detalhes...)
		return
	}

	saida, err := relatorio.GerarXLSX(lote)
	if err != nil {
		responses.Error(c, http.StatusInternalServerError, "Erro ao gerar relatório Excel", err.Error())
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+relatorio.NomeArquivo("xlsx"))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", saida)
}

// processarLote concentra o fluxo comum: carrega a tabela CST, lê os XMLs e
// roda o lote. Devolve lote nulo com status e mensagem quando algo impede o
// processamento.
func (h *ComparativoHandler) processarLote(c *gin.Context) (*reforma.ResultadoLote, int, string, []string) {
	tabela, status, msg, detalhes := h.carregarTabela(c)
	if tabela == nil {
		return nil, status, msg, detalhes
	}

	docs, status, msg, detalhes := lerXMLs(c)
	if docs == nil {
		return nil, status, msg, detalhes
	}

	cfg, err := configDaRequisicao(c)
	if err != nil {
		return nil, http.StatusBadRequest, "Parâmetros de alíquota inválidos", []string{err.Error()}
	}

	lote, err := h.service.CompararLote(docs, tabela, cfg)
	if err != nil {
		if errors.Is(err, reforma.ErrLoteSemSucesso) {
			motivos := make([]string, 0, len(lote.Itens))
			for _, item := range lote.Itens {
				if item.Erro != "" {
					motivos = append(motivos, fmt.Sprintf("%s: %s", item.Nome, item.Erro))
				}
			}
			return nil, http.StatusUnprocessableEntity, "Nenhum XML pôde ser processado", motivos
		}
		return nil, http.StatusInternalServerError, "Erro ao processar o lote", []string{err.Error()}
	}

	return lote, 0, "", nil
}

func (h *ComparativoHandler) carregarTabela(c *gin.Context) (*cst.Tabela, int, string, []string) {
	cstFileHeader, err := c.FormFile("cstFile")
	if err != nil {
		return nil, http.StatusBadRequest, "Planilha CST (.xls, .xlsx, .csv) não encontrada ou inválida", nil
	}

	ext := strings.ToLower(filepath.Ext(cstFileHeader.Filename))
	if ext != ".xls" && ext != ".xlsx" && ext != ".csv" {
		return nil, http.StatusBadRequest, fmt.Sprintf("Extensão de planilha CST não suportada: %s", ext), nil
	}

	cstFile, err := cstFileHeader.Open()
	if err != nil {
		return nil, http.StatusInternalServerError, "Não foi possível abrir a planilha CST", nil
	}
	defer cstFile.Close()

	tabela, err := h.loader.CarregarArquivo(cstFile, cstFileHeader.Filename)
	if err != nil {
		return nil, http.StatusBadRequest, "Erro ao carregar a planilha CST", []string{err.Error()}
	}
	return tabela, 0, "", nil
}

func lerXMLs(c *gin.Context) ([]reforma.DocumentoLote, int, string, []string) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, http.StatusBadRequest, "Requisição multipart inválida", []string{err.Error()}
	}
	xmlFileHeaders := form.File["xmlFiles"]
	if len(xmlFileHeaders) == 0 {
		return nil, http.StatusBadRequest, "Nenhum arquivo XML foi enviado", nil
	}

	var docs []reforma.DocumentoLote
	for _, header := range xmlFileHeaders {
		conteudo, err := lerArquivo(header)
		if err != nil {
			return nil, http.StatusInternalServerError, "Não foi possível abrir um dos arquivos XML", []string{header.Filename}
		}
		docs = append(docs, reforma.DocumentoLote{Nome: header.Filename, Conteudo: conteudo})
	}
	return docs, 0, "", nil
}

func lerArquivo(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// configDaRequisicao monta a configuração da reforma a partir dos campos do
// formulário. As alíquotas chegam em percentual (ex: 0,9 = 0,9%) e são
// convertidas para fração, como na simulação original.
func configDaRequisicao(c *gin.Context) (domain.ConfigReforma, error) {
	cfg := domain.ConfigReformaPadrao()

	if v := strings.TrimSpace(c.PostForm("cbsPercentual")); v != "" {
		d, err := percentualParaFracao(v)
		if err != nil {
			return cfg, fmt.Errorf("cbsPercentual: %w", err)
		}
		cfg.AliquotaCBS = d
	}
	if v := strings.TrimSpace(c.PostForm("ibsPercentual")); v != "" {
		d, err := percentualParaFracao(v)
		if err != nil {
			return cfg, fmt.Errorf("ibsPercentual: %w", err)
		}
		cfg.AliquotaIBS = d
	}

	incluirISS := strings.EqualFold(strings.TrimSpace(c.PostForm("incluirIss")), "true") ||
		strings.TrimSpace(c.PostForm("incluirIss")) == "1"
	cfg.IncluirISS = incluirISS
	if v := strings.TrimSpace(c.PostForm("issPercentual")); v != "" {
		d, err := percentualParaFracao(v)
		if err != nil {
			return cfg, fmt.Errorf("issPercentual: %w", err)
		}
		cfg.PercentualISS = d
	}

	return cfg, nil
}

func percentualParaFracao(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("valor percentual inválido: %q", v)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("valor percentual negativo: %q", v)
	}
	return d.Div(decimal.NewFromInt(100)), nil
}
