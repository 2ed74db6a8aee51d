// package domain/models.go
package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Tipos de tributos da legislação atual considerados no comparativo.
const (
	TributoPIS    = "PIS"
	TributoCOFINS = "COFINS"
	TributoIPI    = "IPI"
	TributoICMS   = "ICMS"
	TributoISS    = "ISS"
)

// TiposLegados são os tributos substituídos pela reforma (CBS+IBS).
var TiposLegados = []string{TributoPIS, TributoCOFINS, TributoIPI, TributoICMS}

// Tributo representa um tributo específico de um item da NF-e.
// Valor é a verdade do documento; BaseCalculo e Aliquota são informativos,
// pois muitos XMLs reais omitem um dos dois.
type Tributo struct {
	Tipo        string          `json:"tipo"`
	CST         string          `json:"cst"`
	BaseCalculo decimal.Decimal `json:"base_calculo"`
	Aliquota    decimal.Decimal `json:"aliquota"` // fração, não percentual
	Valor       decimal.Decimal `json:"valor"`
}

// ItemNota representa um item da Nota Fiscal. Numero segue a ordem de
// declaração no documento (1, 2, 3, ...) e identifica o item em todos os
// cruzamentos posteriores.
type ItemNota struct {
	Numero        int             `json:"numero"`
	Descricao     string          `json:"descricao"`
	NCM           string          `json:"ncm"`
	CFOP          string          `json:"cfop"`
	Unidade       string          `json:"unidade"`
	Quantidade    decimal.Decimal `json:"quantidade"`
	ValorUnitario decimal.Decimal `json:"valor_unitario"`
	ValorTotal    decimal.Decimal `json:"valor_total"`
	Tributos      []Tributo       `json:"tributos"`
}

// GetTributo busca o primeiro tributo do tipo informado no item.
func (i *ItemNota) GetTributo(tipo string) *Tributo {
	for idx := range i.Tributos {
		if strings.EqualFold(i.Tributos[idx].Tipo, tipo) {
			return &i.Tributos[idx]
		}
	}
	return nil
}

// NotaFiscal representa uma Nota Fiscal completa.
type NotaFiscal struct {
	Numero                  string          `json:"numero"`
	Serie                   string          `json:"serie"`
	DataEmissao             string          `json:"data_emissao"`
	ChaveAcesso             string          `json:"chave_acesso"`
	CNPJEmitente            string          `json:"cnpj_emitente"`
	RazaoSocialEmitente     string          `json:"razao_social_emitente"`
	CNPJDestinatario        string          `json:"cnpj_destinatario"`
	RazaoSocialDestinatario string          `json:"razao_social_destinatario"`
	ValorTotalProdutos      decimal.Decimal `json:"valor_total_produtos"`
	ValorTotalNota          decimal.Decimal `json:"valor_total_nota"`
	Itens                   []ItemNota      `json:"itens"`
	// Avisos registra campos numéricos que não puderam ser convertidos e
	// receberam valor padrão durante o parse. Nunca interrompe o processamento.
	Avisos []string `json:"avisos,omitempty"`
}

// GetTotalTributo soma o valor de um tipo de tributo em todos os itens da nota.
func (n *NotaFiscal) GetTotalTributo(tipo string) decimal.Decimal {
	total := decimal.Zero
	for idx := range n.Itens {
		for _, t := range n.Itens[idx].Tributos {
			if strings.EqualFold(t.Tipo, tipo) {
				total = total.Add(t.Valor)
			}
		}
	}
	return total
}

// RegraCST é uma linha da tabela de classificação tributária carregada da
// planilha. ReducaoCBS e ReducaoIBS são frações em [0,1].
type RegraCST struct {
	CST             string          `json:"cst"`
	ExigeTributacao bool            `json:"exige_tributacao"`
	Monofasica      bool            `json:"monofasica"`
	ReducaoAliquota bool            `json:"reducao_aliquota"`
	Diferimento     bool            `json:"diferimento"`
	ReducaoCBS      decimal.Decimal `json:"reducao_cbs"`
	ReducaoIBS      decimal.Decimal `json:"reducao_ibs"`
}

// RegraPadrao é a regra aplicada a CSTs desconhecidos: tributação exigida,
// nenhuma redução.
func RegraPadrao() RegraCST {
	return RegraCST{
		CST:             "",
		ExigeTributacao: true,
		ReducaoCBS:      decimal.Zero,
		ReducaoIBS:      decimal.Zero,
	}
}

// ConfigReforma contém os parâmetros da simulação da reforma tributária.
type ConfigReforma struct {
	AliquotaCBS decimal.Decimal `json:"aliquota_cbs"` // fração, ex: 0.009 = 0,9%
	AliquotaIBS decimal.Decimal `json:"aliquota_ibs"` // fração, ex: 0.001 = 0,1%
	// IncluirISS acrescenta ao total atual um adicional de ISS calculado como
	// PercentualISS sobre a soma dos demais tributos. Aproximação pendente de
	// confirmação de especialista (ver DESIGN.md).
	IncluirISS    bool            `json:"incluir_iss"`
	PercentualISS decimal.Decimal `json:"percentual_iss"` // fração, padrão 0.05
}

// ConfigReformaPadrao replica os valores padrão da simulação original:
// CBS 0,9%, IBS 0,1%, ISS desligado a 5%.
func ConfigReformaPadrao() ConfigReforma {
	return ConfigReforma{
		AliquotaCBS:   decimal.NewFromFloat(0.009),
		AliquotaIBS:   decimal.NewFromFloat(0.001),
		IncluirISS:    false,
		PercentualISS: decimal.NewFromFloat(0.05),
	}
}

// DetalheItem é o detalhamento do comparativo para um item da nota.
type DetalheItem struct {
	Item                 int             `json:"item"`
	Descricao            string          `json:"descricao"`
	NCM                  string          `json:"ncm"`
	CSTs                 string          `json:"csts"`
	ValorProduto         decimal.Decimal `json:"valor_produto"`
	PISAtual             decimal.Decimal `json:"pis_atual"`
	COFINSAtual          decimal.Decimal `json:"cofins_atual"`
	IPIAtual             decimal.Decimal `json:"ipi_atual"`
	ICMSAtual            decimal.Decimal `json:"icms_atual"`
	ISSAtual             decimal.Decimal `json:"iss_atual"`
	TotalAtual           decimal.Decimal `json:"total_atual"`
	CBSNovo              decimal.Decimal `json:"cbs_novo"`
	IBSNovo              decimal.Decimal `json:"ibs_novo"`
	TotalNovo            decimal.Decimal `json:"total_novo"`
	Diferenca            decimal.Decimal `json:"diferenca"`
	DiferencaPercentual  decimal.Decimal `json:"diferenca_percentual"`
}

// ResumoItens resume a distribuição de economia/aumento entre os itens.
type ResumoItens struct {
	TotalItens        int             `json:"total_itens"`
	ItensComEconomia  int             `json:"itens_com_economia"`
	ItensComAumento   int             `json:"itens_com_aumento"`
	ItensSemAlteracao int             `json:"itens_sem_alteracao"`
	MaiorEconomia     decimal.Decimal `json:"maior_economia"`
	MaiorAumento      decimal.Decimal `json:"maior_aumento"`
}

// ResultadoComparativo é o resultado da comparação entre a tributação atual e
// a proposta (CBS+IBS) para uma nota fiscal. Imutável: recalcular com outra
// configuração produz um novo resultado.
type ResultadoComparativo struct {
	NumeroNota       string                     `json:"numero_nota"`
	ChaveAcesso      string                     `json:"chave_acesso"`
	DataEmissao      string                     `json:"data_emissao"`
	CNPJEmitente     string                     `json:"cnpj_emitente"`
	TributacaoAtual  map[string]decimal.Decimal `json:"tributacao_atual"`
	TributacaoNova   map[string]decimal.Decimal `json:"tributacao_nova"`
	DiferencaTotal   decimal.Decimal            `json:"diferenca_total"` // negativo = economia
	DiferencaPercent decimal.Decimal            `json:"diferenca_percentual"`
	Detalhes         []DetalheItem              `json:"detalhes"`
	Resumo           ResumoItens                `json:"resumo"`
}
