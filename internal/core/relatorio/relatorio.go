// package relatorio/relatorio.go
package relatorio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"time"

	"tributario-service/internal/core/reforma"
	"tributario-service/internal/format"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ErrLoteVazio indica lote sem nenhum comparativo para exportar.
var ErrLoteVazio = errors.New("nenhum comparativo disponível para exportação")

var cabecalhoDetalhes = []string{
	"Nota", "Item", "Produto", "NCM", "CSTs", "Valor Produto",
	"Despesa Antes Reforma", "CBS", "IBS", "Despesa Pós Reforma",
	"Diferença Tributária", "Variação",
}

// NomeArquivo monta o nome de download com carimbo de tempo, no padrão
// relatorio_tributos_20060102_150405.<ext>.
func NomeArquivo(ext string) string {
	return fmt.Sprintf("relatorio_tributos_%s.%s", time.Now().Format("20060102_150405"), ext)
}

// GerarCSV exporta o detalhamento do lote em CSV separado por ponto e
// vírgula, com valores no formato monetário brasileiro (R$ 1.234,56) e BOM
// UTF-8 para abrir corretamente em planilhas.
func GerarCSV(lote *reforma.ResultadoLote) ([]byte, error) {
	if lote == nil || lote.Processados == 0 {
		return nil, ErrLoteVazio
	}

	var buffer bytes.Buffer
	buffer.WriteString("\uFEFF")
	writer := csv.NewWriter(&buffer)
	writer.Comma = ';'

	if err := writer.Write(cabecalhoDetalhes); err != nil {
		return nil, err
	}

	for _, item := range lote.Itens {
		if !item.Sucesso {
			continue
		}
		r := item.Resultado
		for _, d := range r.Detalhes {
			linha := []string{
				r.NumeroNota,
				fmt.Sprintf("%d", d.Item),
				d.Descricao,
				d.NCM,
				d.CSTs,
				format.Moeda(d.ValorProduto),
				format.Moeda(d.TotalAtual),
				format.Moeda(d.CBSNovo),
				format.Moeda(d.IBSNovo),
				format.Moeda(d.TotalNovo),
				format.Moeda(d.Diferenca),
				format.Percentual(d.DiferencaPercentual, 2),
			}
			if err := writer.Write(linha); err != nil {
				return nil, err
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// GerarXLSX exporta o lote em Excel com uma aba de resumo por nota e uma aba
// de detalhamento por item. Os valores saem numéricos com duas casas.
func GerarXLSX(lote *reforma.ResultadoLote) ([]byte, error) {
	if lote == nil || lote.Processados == 0 {
		return nil, ErrLoteVazio
	}

	f := excelize.NewFile()
	defer f.Close()

	const abaResumo = "Resumo"
	const abaDetalhes = "Detalhes"

	f.SetSheetName("Sheet1", abaResumo)
	if _, err := f.NewSheet(abaDetalhes); err != nil {
		return nil, err
	}

	resumoCab := []interface{}{
		"Nota", "CNPJ Emitente", "Chave de Acesso", "Data Emissão", "Despesa Atual",
		"CBS", "IBS", "Despesa Pós Reforma", "Diferença", "Variação (%)", "Situação",
	}
	if err := f.SetSheetRow(abaResumo, "A1", &resumoCab); err != nil {
		return nil, err
	}

	linhaResumo := 2
	for _, item := range lote.Itens {
		if !item.Sucesso {
			continue
		}
		r := item.Resultado
		valores := []interface{}{
			r.NumeroNota,
			format.Documento(r.CNPJEmitente),
			r.ChaveAcesso,
			r.DataEmissao,
			duasCasas(r.TributacaoAtual["TOTAL"]),
			duasCasas(r.TributacaoNova["CBS"]),
			duasCasas(r.TributacaoNova["IBS"]),
			duasCasas(r.TributacaoNova["TOTAL"]),
			duasCasas(r.DiferencaTotal),
			duasCasas(r.DiferencaPercent),
			format.MensagemEconomia(r.DiferencaTotal, r.DiferencaPercent),
		}
		celula, err := excelize.CoordinatesToCellName(1, linhaResumo)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(abaResumo, celula, &valores); err != nil {
			return nil, err
		}
		linhaResumo++
	}

	detCab := make([]interface{}, len(cabecalhoDetalhes))
	for i, c := range cabecalhoDetalhes {
		detCab[i] = c
	}
	if err := f.SetSheetRow(abaDetalhes, "A1", &detCab); err != nil {
		return nil, err
	}

	linhaDet := 2
	for _, item := range lote.Itens {
		if !item.Sucesso {
			continue
		}
		r := item.Resultado
		for _, d := range r.Detalhes {
			valores := []interface{}{
				r.NumeroNota,
				d.Item,
				d.Descricao,
				d.NCM,
				d.CSTs,
				duasCasas(d.ValorProduto),
				duasCasas(d.TotalAtual),
				duasCasas(d.CBSNovo),
				duasCasas(d.IBSNovo),
				duasCasas(d.TotalNovo),
				duasCasas(d.Diferenca),
				duasCasas(d.DiferencaPercentual),
			}
			celula, err := excelize.CoordinatesToCellName(1, linhaDet)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(abaDetalhes, celula, &valores); err != nil {
				return nil, err
			}
			linhaDet++
		}
	}

	var buffer bytes.Buffer
	if err := f.Write(&buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func duasCasas(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
