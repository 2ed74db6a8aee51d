package format

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMoeda(t *testing.T) {
	casos := []struct {
		valor    string
		esperado string
	}{
		{"0", "R$ 0,00"},
		{"10", "R$ 10,00"},
		{"1234.56", "R$ 1.234,56"},
		{"1234567.8", "R$ 1.234.567,80"},
		{"-20.65", "R$ -20,65"},
		{"0.005", "R$ 0,01"},
	}

	for _, caso := range casos {
		assert.Equal(t, caso.esperado, Moeda(dec(caso.valor)), "valor %s", caso.valor)
	}
}

func TestPercentual(t *testing.T) {
	assert.Equal(t, "10,50%", Percentual(dec("10.5"), 2))
	assert.Equal(t, "-95,38%", Percentual(dec("-95.381"), 2))
	assert.Equal(t, "100%", Percentual(dec("100"), 0))
}

func TestLimparCNPJCPF(t *testing.T) {
	assert.Equal(t, "12345678000190", LimparCNPJCPF("12.345.678/0001-90"))
	assert.Equal(t, "", LimparCNPJCPF("sem dígitos"))
}

func TestCNPJ(t *testing.T) {
	assert.Equal(t, "12.345.678/0001-90", CNPJ("12345678000190"))
	// documento de tamanho errado volta como veio
	assert.Equal(t, "123", CNPJ("123"))
}

func TestCPF(t *testing.T) {
	assert.Equal(t, "123.456.789-01", CPF("12345678901"))
	assert.Equal(t, "12345", CPF("12345"))
}

func TestDocumento(t *testing.T) {
	assert.Equal(t, "12.345.678/0001-90", Documento("12345678000190"))
	assert.Equal(t, "123.456.789-01", Documento("123.456.789-01"))
	assert.Equal(t, "ISENTO", Documento("ISENTO"))
}

func TestMensagemEconomia(t *testing.T) {
	assert.Equal(t, "ECONOMIA de R$ 20,65 (95,38%)", MensagemEconomia(dec("-20.65"), dec("-95.38")))
	assert.Equal(t, "AUMENTO de R$ 5,00 (12,00%)", MensagemEconomia(dec("5"), dec("12")))
	assert.Equal(t, "SEM ALTERAÇÃO na carga tributária", MensagemEconomia(dec("0"), dec("0")))
}
