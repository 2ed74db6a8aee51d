package relatorio

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"tributario-service/internal/core/reforma"
	"tributario-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func loteExemplo() *reforma.ResultadoLote {
	resultado := &domain.ResultadoComparativo{
		NumeroNota:   "123",
		ChaveAcesso:  "35210812345678000190550010000001231000001234",
		DataEmissao:  "2021-08-15",
		CNPJEmitente: "12345678000190",
		TributacaoAtual: map[string]decimal.Decimal{
			"TOTAL": dec("21.65"),
		},
		TributacaoNova: map[string]decimal.Decimal{
			"CBS":   dec("0.90"),
			"IBS":   dec("0.10"),
			"TOTAL": dec("1.00"),
		},
		DiferencaTotal:   dec("-20.65"),
		DiferencaPercent: dec("-95.38"),
		Detalhes: []domain.DetalheItem{
			{
				Item:                1,
				Descricao:           "Produto A",
				NCM:                 "22021000",
				CSTs:                "01, 00",
				ValorProduto:        dec("100.00"),
				TotalAtual:          dec("21.65"),
				CBSNovo:             dec("0.90"),
				IBSNovo:             dec("0.10"),
				TotalNovo:           dec("1.00"),
				Diferenca:           dec("-20.65"),
				DiferencaPercentual: dec("-95.38"),
			},
		},
	}

	return &reforma.ResultadoLote{
		Processados: 1,
		Falhas:      1,
		Itens: []reforma.ItemLote{
			{ID: "a", Nome: "nota.xml", Sucesso: true, Resultado: resultado},
			{ID: "b", Nome: "quebrado.xml", Sucesso: false, Erro: "XML malformado"},
		},
	}
}

func TestGerarCSV(t *testing.T) {
	dados, err := GerarCSV(loteExemplo())
	require.NoError(t, err)

	// BOM UTF-8 para abrir direto em planilha
	require.True(t, bytes.HasPrefix(dados, []byte("\ufeff")))

	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(dados, []byte("\ufeff"))))
	reader.Comma = ';'
	linhas, err := reader.ReadAll()
	require.NoError(t, err)

	// cabeçalho + 1 item; o documento que falhou não entra
	require.Len(t, linhas, 2)
	assert.Equal(t, cabecalhoDetalhes, linhas[0])

	linha := linhas[1]
	assert.Equal(t, "123", linha[0])
	assert.Equal(t, "Produto A", linha[2])
	assert.Equal(t, "R$ 100,00", linha[5])
	assert.Equal(t, "R$ 21,65", linha[6])
	assert.Equal(t, "R$ -20,65", linha[10])
	assert.Equal(t, "-95,38%", linha[11])
}

func TestGerarXLSX(t *testing.T) {
	dados, err := GerarXLSX(loteExemplo())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(dados))
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Resumo", "Detalhes"}, f.GetSheetList())

	nota, err := f.GetCellValue("Resumo", "A2")
	require.NoError(t, err)
	assert.Equal(t, "123", nota)

	emitente, err := f.GetCellValue("Resumo", "B2")
	require.NoError(t, err)
	assert.Equal(t, "12.345.678/0001-90", emitente)

	situacao, err := f.GetCellValue("Resumo", "K2")
	require.NoError(t, err)
	assert.Contains(t, situacao, "ECONOMIA")

	produto, err := f.GetCellValue("Detalhes", "C2")
	require.NoError(t, err)
	assert.Equal(t, "Produto A", produto)
}

func TestGerarRelatorioLoteVazio(t *testing.T) {
	_, err := GerarCSV(nil)
	require.ErrorIs(t, err, ErrLoteVazio)

	_, err = GerarCSV(&reforma.ResultadoLote{})
	require.ErrorIs(t, err, ErrLoteVazio)

	_, err = GerarXLSX(&reforma.ResultadoLote{Falhas: 3})
	require.ErrorIs(t, err, ErrLoteVazio)
}

func TestNomeArquivo(t *testing.T) {
	nome := NomeArquivo("csv")
	assert.True(t, strings.HasPrefix(nome, "relatorio_tributos_"))
	assert.True(t, strings.HasSuffix(nome, ".csv"))
	// relatorio_tributos_YYYYMMDD_HHMMSS.csv
	assert.Len(t, nome, len("relatorio_tributos_20060102_150405.csv"))
}
