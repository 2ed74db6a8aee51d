// package regras/regras.go
package regras

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

// CSTPadrao é a linha usada para CSTs sem alíquota cadastrada.
const CSTPadrao = "000"

// Aliquotas reúne as alíquotas legadas (frações) aplicáveis a um CST quando é
// preciso estimar a carga atual de uma nota sem blocos de imposto.
type Aliquotas struct {
	PIS    decimal.Decimal `json:"PIS"`
	COFINS decimal.Decimal `json:"COFINS"`
	ICMS   decimal.Decimal `json:"ICMS"`
}

// TabelaAliquotas mapeia CST para alíquotas legadas. Imutável após a carga.
type TabelaAliquotas struct {
	linhas map[string]Aliquotas
}

// TabelaInterna devolve a tabela embutida com os CSTs mais comuns. Valores
// são aproximações configuráveis, não garantia regulatória.
func TabelaInterna() *TabelaAliquotas {
	pis := decimal.NewFromFloat(0.0065)
	cofins := decimal.NewFromFloat(0.03)
	return &TabelaAliquotas{linhas: map[string]Aliquotas{
		"000": {PIS: pis, COFINS: cofins, ICMS: decimal.NewFromFloat(0.18)},
		"010": {PIS: pis, COFINS: cofins, ICMS: decimal.NewFromFloat(0.12)},
		"020": {PIS: pis, COFINS: cofins, ICMS: decimal.NewFromFloat(0.07)},
		// alíquota zero
		"060": {PIS: decimal.Zero, COFINS: decimal.Zero, ICMS: decimal.Zero},
	}}
}

// CarregarJSON substitui a tabela embutida por uma no formato do
// aliquotas.json: {"000": {"PIS": 0.0065, "COFINS": 0.03, "ICMS": 0.18}, ...}.
func CarregarJSON(r io.Reader) (*TabelaAliquotas, error) {
	var bruto map[string]Aliquotas
	if err := json.NewDecoder(r).Decode(&bruto); err != nil {
		return nil, fmt.Errorf("erro ao ler tabela de alíquotas: %w", err)
	}
	if len(bruto) == 0 {
		return nil, fmt.Errorf("tabela de alíquotas vazia")
	}

	linhas := make(map[string]Aliquotas, len(bruto))
	for cst, a := range bruto {
		linhas[strings.TrimSpace(cst)] = a
	}
	if _, ok := linhas[CSTPadrao]; !ok {
		linhas[CSTPadrao] = TabelaInterna().Buscar(CSTPadrao)
	}
	return &TabelaAliquotas{linhas: linhas}, nil
}

// Buscar devolve as alíquotas do CST, caindo na linha padrão ("000") para
// códigos desconhecidos.
func (t *TabelaAliquotas) Buscar(cst string) Aliquotas {
	limpo := strings.TrimSpace(cst)
	if a, ok := t.linhas[limpo]; ok {
		return a
	}
	if a, ok := t.linhas[strings.TrimLeft(limpo, "0")]; ok {
		return a
	}
	return t.linhas[CSTPadrao]
}
