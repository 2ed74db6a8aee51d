// package format/formatters.go
package format

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Moeda formata um valor no padrão monetário brasileiro: R$ 1.234,56
// (milhar com ponto, decimal com vírgula).
func Moeda(valor decimal.Decimal) string {
	return "R$ " + numeroBR(valor, 2)
}

// Percentual formata um valor já em escala percentual: 10,50%.
func Percentual(valor decimal.Decimal, casas int) string {
	return numeroBR(valor, casas) + "%"
}

// numeroBR formata com separadores brasileiros sem depender de locale do
// sistema: formata em padrão anglo e troca os separadores.
func numeroBR(valor decimal.Decimal, casas int) string {
	f, _ := valor.Round(int32(casas)).Float64()
	anglo := fmt.Sprintf("%.*f", casas, f)

	negativo := strings.HasPrefix(anglo, "-")
	anglo = strings.TrimPrefix(anglo, "-")

	inteiro, fracao, _ := strings.Cut(anglo, ".")
	var grupos []string
	for len(inteiro) > 3 {
		grupos = append([]string{inteiro[len(inteiro)-3:]}, grupos...)
		inteiro = inteiro[:len(inteiro)-3]
	}
	grupos = append([]string{inteiro}, grupos...)

	s := strings.Join(grupos, ".")
	if casas > 0 {
		s += "," + fracao
	}
	if negativo {
		return "-" + s
	}
	return s
}

// LimparCNPJCPF remove tudo que não for dígito do documento.
func LimparCNPJCPF(documento string) string {
	var b strings.Builder
	for _, r := range documento {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CNPJ formata no padrão XX.XXX.XXX/XXXX-XX; devolve a entrada original
// quando o tamanho não bate.
func CNPJ(cnpj string) string {
	limpo := LimparCNPJCPF(cnpj)
	if len(limpo) != 14 {
		return cnpj
	}
	return fmt.Sprintf("%s.%s.%s/%s-%s", limpo[:2], limpo[2:5], limpo[5:8], limpo[8:12], limpo[12:14])
}

// CPF formata no padrão XXX.XXX.XXX-XX; devolve a entrada original quando o
// tamanho não bate.
func CPF(cpf string) string {
	limpo := LimparCNPJCPF(cpf)
	if len(limpo) != 11 {
		return cpf
	}
	return fmt.Sprintf("%s.%s.%s-%s", limpo[:3], limpo[3:6], limpo[6:9], limpo[9:11])
}

// Documento formata CNPJ ou CPF conforme a quantidade de dígitos; outros
// tamanhos voltam como vieram.
func Documento(documento string) string {
	switch len(LimparCNPJCPF(documento)) {
	case 14:
		return CNPJ(documento)
	case 11:
		return CPF(documento)
	default:
		return documento
	}
}

// MensagemEconomia descreve o resultado do comparativo: diferença negativa é
// economia, positiva é aumento.
func MensagemEconomia(diferencaTotal, diferencaPercentual decimal.Decimal) string {
	valor := Moeda(diferencaTotal.Abs())
	pct := Percentual(diferencaPercentual.Abs(), 2)

	switch {
	case diferencaTotal.IsNegative():
		return fmt.Sprintf("ECONOMIA de %s (%s)", valor, pct)
	case diferencaTotal.IsPositive():
		return fmt.Sprintf("AUMENTO de %s (%s)", valor, pct)
	default:
		return "SEM ALTERAÇÃO na carga tributária"
	}
}
