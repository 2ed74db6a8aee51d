// package reforma/calculadora.go
package reforma

import (
	"errors"
	"strings"

	"tributario-service/internal/core/cst"
	"tributario-service/internal/core/regras"
	"tributario-service/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Erros do comparativo tributário.
var (
	// ErrTabelaCSTAusente: o comparativo exige tabela carregada. Para rodar
	// sem planilha, passe explicitamente cst.TabelaPadrao().
	ErrTabelaCSTAusente = errors.New("tabela de classificação CST não carregada")
	// ErrNotaVazia indica nota sem itens.
	ErrNotaVazia = errors.New("nota fiscal sem itens")
)

var cem = decimal.NewFromInt(100)

// Service define a interface do serviço de comparação tributária.
type Service interface {
	Comparar(nota *domain.NotaFiscal, tabela *cst.Tabela, cfg domain.ConfigReforma) (*domain.ResultadoComparativo, error)
	CompararLote(docs []DocumentoLote, tabela *cst.Tabela, cfg domain.ConfigReforma) (*ResultadoLote, error)
	EstimarTributosAtuais(nota *domain.NotaFiscal) map[string]decimal.Decimal
}

type service struct {
	logger    *zap.Logger
	parser    parserNota
	aliquotas *regras.TabelaAliquotas
}

// parserNota é o colaborador que transforma XML bruto em NotaFiscal.
type parserNota interface {
	Parse(conteudo []byte) (*domain.NotaFiscal, error)
}

// NewService cria um novo serviço de comparação tributária. A tabela de
// alíquotas alimenta apenas a estimativa de carga legada; nula usa a embutida.
func NewService(logger *zap.Logger, parser parserNota, aliquotas *regras.TabelaAliquotas) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if aliquotas == nil {
		aliquotas = regras.TabelaInterna()
	}
	return &service{
		logger:    logger,
		parser:    parser,
		aliquotas: aliquotas,
	}
}

// Comparar calcula o comparativo entre a tributação atual (soma dos tributos
// legados presentes na nota) e a proposta (CBS+IBS) para uma nota fiscal. É
// uma função pura das entradas: nenhum estado do serviço é alterado, e cada
// chamada produz um resultado novo.
func (s *service) Comparar(nota *domain.NotaFiscal, tabela *cst.Tabela, cfg domain.ConfigReforma) (*domain.ResultadoComparativo, error) {
	if tabela == nil {
		return nil, ErrTabelaCSTAusente
	}
	if nota == nil || len(nota.Itens) == 0 {
		return nil, ErrNotaVazia
	}

	resultado := &domain.ResultadoComparativo{
		NumeroNota:   nota.Numero,
		ChaveAcesso:  nota.ChaveAcesso,
		DataEmissao:  nota.DataEmissao,
		CNPJEmitente: nota.CNPJEmitente,
		TributacaoAtual: map[string]decimal.Decimal{
			domain.TributoPIS:    decimal.Zero,
			domain.TributoCOFINS: decimal.Zero,
			domain.TributoIPI:    decimal.Zero,
			domain.TributoICMS:   decimal.Zero,
			"TOTAL":              decimal.Zero,
		},
		TributacaoNova: map[string]decimal.Decimal{
			"CBS":   decimal.Zero,
			"IBS":   decimal.Zero,
			"TOTAL": decimal.Zero,
		},
	}
	if cfg.IncluirISS {
		resultado.TributacaoAtual[domain.TributoISS] = decimal.Zero
	}

	for idx := range nota.Itens {
		detalhe := s.compararItem(&nota.Itens[idx], tabela, cfg)
		resultado.Detalhes = append(resultado.Detalhes, detalhe)

		resultado.TributacaoAtual[domain.TributoPIS] = resultado.TributacaoAtual[domain.TributoPIS].Add(detalhe.PISAtual)
		resultado.TributacaoAtual[domain.TributoCOFINS] = resultado.TributacaoAtual[domain.TributoCOFINS].Add(detalhe.COFINSAtual)
		resultado.TributacaoAtual[domain.TributoIPI] = resultado.TributacaoAtual[domain.TributoIPI].Add(detalhe.IPIAtual)
		resultado.TributacaoAtual[domain.TributoICMS] = resultado.TributacaoAtual[domain.TributoICMS].Add(detalhe.ICMSAtual)
		if cfg.IncluirISS {
			resultado.TributacaoAtual[domain.TributoISS] = resultado.TributacaoAtual[domain.TributoISS].Add(detalhe.ISSAtual)
		}
		resultado.TributacaoAtual["TOTAL"] = resultado.TributacaoAtual["TOTAL"].Add(detalhe.TotalAtual)

		resultado.TributacaoNova["CBS"] = resultado.TributacaoNova["CBS"].Add(detalhe.CBSNovo)
		resultado.TributacaoNova["IBS"] = resultado.TributacaoNova["IBS"].Add(detalhe.IBSNovo)
		resultado.TributacaoNova["TOTAL"] = resultado.TributacaoNova["TOTAL"].Add(detalhe.TotalNovo)
	}

	totalAtual := resultado.TributacaoAtual["TOTAL"]
	totalNovo := resultado.TributacaoNova["TOTAL"]
	resultado.DiferencaTotal = totalNovo.Sub(totalAtual)
	// percentual agregado sai dos totais, não da média dos itens, para que
	// itens de base pequena não distorçam o agregado
	resultado.DiferencaPercent = percentual(resultado.DiferencaTotal, totalAtual)
	resultado.Resumo = resumirItens(resultado.Detalhes)

	return resultado, nil
}

// compararItem aplica o algoritmo por item: total atual pela soma dos valores
// dos tributos legados (o valor declarado é a verdade do documento; base e
// alíquota não são recalculadas), resolução de regra CST e cálculo CBS/IBS
// sobre o valor total do item.
func (s *service) compararItem(item *domain.ItemNota, tabela *cst.Tabela, cfg domain.ConfigReforma) domain.DetalheItem {
	detalhe := domain.DetalheItem{
		Item:         item.Numero,
		Descricao:    abreviar(item.Descricao, 50),
		NCM:          item.NCM,
		ValorProduto: item.ValorTotal,
		PISAtual:     decimal.Zero,
		COFINSAtual:  decimal.Zero,
		IPIAtual:     decimal.Zero,
		ICMSAtual:    decimal.Zero,
		ISSAtual:     decimal.Zero,
		CBSNovo:      decimal.Zero,
		IBSNovo:      decimal.Zero,
	}

	for _, t := range item.Tributos {
		switch strings.ToUpper(t.Tipo) {
		case domain.TributoPIS:
			detalhe.PISAtual = detalhe.PISAtual.Add(t.Valor)
		case domain.TributoCOFINS:
			detalhe.COFINSAtual = detalhe.COFINSAtual.Add(t.Valor)
		case domain.TributoIPI:
			detalhe.IPIAtual = detalhe.IPIAtual.Add(t.Valor)
		case domain.TributoICMS:
			detalhe.ICMSAtual = detalhe.ICMSAtual.Add(t.Valor)
		}
	}
	detalhe.TotalAtual = detalhe.PISAtual.Add(detalhe.COFINSAtual).Add(detalhe.IPIAtual).Add(detalhe.ICMSAtual)

	// ISS opcional como adicional sobre a soma dos demais tributos
	// (aproximação; ver DESIGN.md)
	if cfg.IncluirISS {
		detalhe.ISSAtual = detalhe.TotalAtual.Mul(cfg.PercentualISS)
		detalhe.TotalAtual = detalhe.TotalAtual.Add(detalhe.ISSAtual)
	}

	regra, csts := resolverRegra(item, tabela)
	detalhe.CSTs = csts

	base := item.ValorTotal
	if regra.ExigeTributacao && !regra.Monofasica {
		fator := decimal.NewFromInt(1).Sub(regra.ReducaoCBS)
		detalhe.CBSNovo = base.Mul(cfg.AliquotaCBS).Mul(fator)
	}
	if regra.ExigeTributacao && !regra.Diferimento {
		fator := decimal.NewFromInt(1).Sub(regra.ReducaoIBS)
		detalhe.IBSNovo = base.Mul(cfg.AliquotaIBS).Mul(fator)
	}

	detalhe.TotalNovo = detalhe.CBSNovo.Add(detalhe.IBSNovo)
	detalhe.Diferenca = detalhe.TotalNovo.Sub(detalhe.TotalAtual)
	detalhe.DiferencaPercentual = percentual(detalhe.Diferenca, detalhe.TotalAtual)

	return detalhe
}

// resolverRegra coleta a regra de cada CST distinto citado pelos tributos do
// item e escolhe a menos favorável ao contribuinte no novo regime: primeiro
// uma regra que exige tributação, e entre essas a de menor soma de reduções.
// Empates resolvem pela ordem dos tributos no item, o que torna a escolha
// determinística. Item sem CST usa a regra padrão.
func resolverRegra(item *domain.ItemNota, tabela *cst.Tabela) (domain.RegraCST, string) {
	var candidatas []domain.RegraCST
	var csts []string
	vistos := map[string]bool{}

	for _, t := range item.Tributos {
		c := strings.TrimSpace(t.CST)
		if c == "" || vistos[c] {
			continue
		}
		vistos[c] = true
		csts = append(csts, c)
		candidatas = append(candidatas, tabela.Buscar(c))
	}

	if len(candidatas) == 0 {
		return domain.RegraPadrao(), "N/A"
	}

	escolhida := candidatas[0]
	for _, r := range candidatas[1:] {
		if maisRestritiva(r, escolhida) {
			escolhida = r
		}
	}
	return escolhida, strings.Join(csts, ", ")
}

// maisRestritiva decide se a regra a gera mais tributo que a regra b.
func maisRestritiva(a, b domain.RegraCST) bool {
	if a.ExigeTributacao != b.ExigeTributacao {
		return a.ExigeTributacao
	}
	return a.ReducaoCBS.Add(a.ReducaoIBS).LessThan(b.ReducaoCBS.Add(b.ReducaoIBS))
}

// percentual calcula diferenca/base*100, definido como 0 quando a base é
// zero. Um item sem tributo atual e com tributo novo positivo reporta 0% por
// política explícita, não por acidente.
func percentual(diferenca, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return diferenca.Div(base).Mul(cem)
}

func resumirItens(detalhes []domain.DetalheItem) domain.ResumoItens {
	resumo := domain.ResumoItens{
		TotalItens:    len(detalhes),
		MaiorEconomia: decimal.Zero,
		MaiorAumento:  decimal.Zero,
	}
	for _, d := range detalhes {
		switch {
		case d.Diferenca.IsNegative():
			resumo.ItensComEconomia++
			if d.Diferenca.Abs().GreaterThan(resumo.MaiorEconomia) {
				resumo.MaiorEconomia = d.Diferenca.Abs()
			}
		case d.Diferenca.IsPositive():
			resumo.ItensComAumento++
			if d.Diferenca.GreaterThan(resumo.MaiorAumento) {
				resumo.MaiorAumento = d.Diferenca
			}
		default:
			resumo.ItensSemAlteracao++
		}
	}
	return resumo
}

// EstimarTributosAtuais aproxima a carga legada de uma nota cujos itens não
// trazem blocos de imposto, aplicando a tabela de alíquotas por CST sobre o
// valor de cada item. Nunca substitui valores declarados: itens com tributos
// parseados entram pela soma dos valores reais.
func (s *service) EstimarTributosAtuais(nota *domain.NotaFiscal) map[string]decimal.Decimal {
	totais := map[string]decimal.Decimal{
		domain.TributoPIS:    decimal.Zero,
		domain.TributoCOFINS: decimal.Zero,
		domain.TributoICMS:   decimal.Zero,
		"TOTAL":              decimal.Zero,
	}
	if nota == nil {
		return totais
	}

	for idx := range nota.Itens {
		item := &nota.Itens[idx]
		if len(item.Tributos) > 0 {
			for _, t := range item.Tributos {
				tipo := strings.ToUpper(t.Tipo)
				if _, ok := totais[tipo]; ok {
					totais[tipo] = totais[tipo].Add(t.Valor)
					totais["TOTAL"] = totais["TOTAL"].Add(t.Valor)
				}
			}
			continue
		}

		aliq := s.aliquotas.Buscar(primeiroCST(item))
		pis := item.ValorTotal.Mul(aliq.PIS)
		cofins := item.ValorTotal.Mul(aliq.COFINS)
		icms := item.ValorTotal.Mul(aliq.ICMS)
		totais[domain.TributoPIS] = totais[domain.TributoPIS].Add(pis)
		totais[domain.TributoCOFINS] = totais[domain.TributoCOFINS].Add(cofins)
		totais[domain.TributoICMS] = totais[domain.TributoICMS].Add(icms)
		totais["TOTAL"] = totais["TOTAL"].Add(pis).Add(cofins).Add(icms)
	}
	return totais
}

func primeiroCST(item *domain.ItemNota) string {
	for _, t := range item.Tributos {
		if c := strings.TrimSpace(t.CST); c != "" {
			return c
		}
	}
	return regras.CSTPadrao
}

func abreviar(s string, limite int) string {
	if len(s) <= limite {
		return s
	}
	corte := []rune(s)
	if len(corte) <= limite {
		return s
	}
	return string(corte[:limite]) + "..."
}
