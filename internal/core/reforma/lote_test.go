package reforma

import (
	"fmt"
	"strings"
	"testing"

	"tributario-service/internal/core/cst"
	"tributario-service/internal/core/nfe"
	"tributario-service/internal/core/regras"
	"tributario-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xmlNotaSimples(numero string) []byte {
	return []byte(fmt.Sprintf(`<nfeProc><NFe><infNFe Id="NFe%s">
	  <ide><nNF>%s</nNF></ide>
	  <det><prod><xProd>Produto</xProd><vProd>100.00</vProd></prod>
	    <imposto><ICMS><ICMS00><CST>00</CST><vICMS>18.00</vICMS></ICMS00></ICMS></imposto>
	  </det>
	</infNFe></NFe></nfeProc>`, numero, numero))
}

func novoServicoComParser(t *testing.T) Service {
	t.Helper()
	return NewService(nil, nfe.NewParser(nil), nil)
}

func TestCompararLoteIsolaFalhas(t *testing.T) {
	svc := novoServicoComParser(t)

	docs := []DocumentoLote{
		{Nome: "nota1.xml", Conteudo: xmlNotaSimples("1")},
		{Nome: "quebrado.xml", Conteudo: []byte("<nfe><aberto>")},
		{Nome: "nota2.xml", Conteudo: xmlNotaSimples("2")},
	}

	lote, err := svc.CompararLote(docs, cst.TabelaPadrao(), domain.ConfigReformaPadrao())
	require.NoError(t, err)

	assert.Equal(t, 2, lote.Processados)
	assert.Equal(t, 1, lote.Falhas)
	require.Len(t, lote.Itens, 3)

	// a ordem de entrada é preservada mesmo com processamento paralelo
	assert.Equal(t, "nota1.xml", lote.Itens[0].Nome)
	assert.Equal(t, "quebrado.xml", lote.Itens[1].Nome)
	assert.Equal(t, "nota2.xml", lote.Itens[2].Nome)

	assert.True(t, lote.Itens[0].Sucesso)
	require.NotNil(t, lote.Itens[0].Resultado)
	assert.Equal(t, "1", lote.Itens[0].Resultado.NumeroNota)
	assert.NotEmpty(t, lote.Itens[0].ID)
	// nota com tributos declarados não recebe estimativa
	assert.Nil(t, lote.Itens[0].TributosEstimados)

	assert.False(t, lote.Itens[1].Sucesso)
	assert.Nil(t, lote.Itens[1].Resultado)
	assert.NotEmpty(t, lote.Itens[1].Erro)

	assert.True(t, lote.Itens[2].Sucesso)
	assert.Equal(t, "2", lote.Itens[2].Resultado.NumeroNota)
}

func TestCompararLoteSemNenhumSucesso(t *testing.T) {
	svc := novoServicoComParser(t)

	docs := []DocumentoLote{
		{Nome: "a.xml", Conteudo: []byte("nada de xml")},
		{Nome: "b.xml", Conteudo: []byte("<outro/>")},
	}

	lote, err := svc.CompararLote(docs, cst.TabelaPadrao(), domain.ConfigReformaPadrao())
	require.ErrorIs(t, err, ErrLoteSemSucesso)
	require.NotNil(t, lote)
	assert.Equal(t, 0, lote.Processados)
	assert.Equal(t, 2, lote.Falhas)
}

func TestCompararLoteVazio(t *testing.T) {
	svc := novoServicoComParser(t)

	lote, err := svc.CompararLote(nil, cst.TabelaPadrao(), domain.ConfigReformaPadrao())
	require.ErrorIs(t, err, ErrLoteSemSucesso)
	require.NotNil(t, lote)
	assert.Empty(t, lote.Itens)
}

func TestCompararLoteSemTabela(t *testing.T) {
	svc := novoServicoComParser(t)

	_, err := svc.CompararLote([]DocumentoLote{{Nome: "a.xml"}}, nil, domain.ConfigReformaPadrao())
	require.ErrorIs(t, err, ErrTabelaCSTAusente)
}

func TestCompararLoteEstimaCargaDeNotaSemImpostos(t *testing.T) {
	svc := novoServicoComParser(t)

	semImpostos := []byte(`<nfeProc><NFe><infNFe Id="NFe7">
	  <ide><nNF>7</nNF></ide>
	  <det><prod><xProd>Produto</xProd><vProd>100.00</vProd></prod></det>
	</infNFe></NFe></nfeProc>`)

	lote, err := svc.CompararLote([]DocumentoLote{{Nome: "sem-impostos.xml", Conteudo: semImpostos}},
		cst.TabelaPadrao(), domain.ConfigReformaPadrao())
	require.NoError(t, err)

	item := lote.Itens[0]
	require.True(t, item.Sucesso)
	// a comparação parte dos valores declarados (zero)...
	require.True(t, item.Resultado.TributacaoAtual["TOTAL"].IsZero())

	// ...e a estimativa pela tabela de alíquotas sai em paralelo
	require.NotNil(t, item.TributosEstimados)
	assert.True(t, item.TributosEstimados[domain.TributoPIS].Equal(decimal.RequireFromString("0.65")))
	assert.True(t, item.TributosEstimados[domain.TributoCOFINS].Equal(decimal.RequireFromString("3.00")))
	assert.True(t, item.TributosEstimados[domain.TributoICMS].Equal(decimal.RequireFromString("18.00")))
	assert.True(t, item.TributosEstimados["TOTAL"].Equal(decimal.RequireFromString("21.65")))
}

func TestCompararLoteEstimativaComTabelaCarregada(t *testing.T) {
	aliquotas, err := regras.CarregarJSON(strings.NewReader(
		`{"000": {"PIS": 0.01, "COFINS": 0.02, "ICMS": 0.10}}`))
	require.NoError(t, err)
	svc := NewService(nil, nfe.NewParser(nil), aliquotas)

	semImpostos := []byte(`<nfeProc><NFe><infNFe Id="NFe8">
	  <ide><nNF>8</nNF></ide>
	  <det><prod><xProd>Produto</xProd><vProd>200.00</vProd></prod></det>
	</infNFe></NFe></nfeProc>`)

	lote, err := svc.CompararLote([]DocumentoLote{{Nome: "sem-impostos.xml", Conteudo: semImpostos}},
		cst.TabelaPadrao(), domain.ConfigReformaPadrao())
	require.NoError(t, err)

	item := lote.Itens[0]
	require.NotNil(t, item.TributosEstimados)
	assert.True(t, item.TributosEstimados[domain.TributoICMS].Equal(decimal.RequireFromString("20")))
	assert.True(t, item.TributosEstimados["TOTAL"].Equal(decimal.RequireFromString("26")))
}

func TestCompararLoteMuitosDocumentos(t *testing.T) {
	svc := novoServicoComParser(t)

	var docs []DocumentoLote
	for i := 0; i < 40; i++ {
		docs = append(docs, DocumentoLote{
			Nome:     fmt.Sprintf("nota%d.xml", i),
			Conteudo: xmlNotaSimples(fmt.Sprintf("%d", i)),
		})
	}

	lote, err := svc.CompararLote(docs, cst.TabelaPadrao(), domain.ConfigReformaPadrao())
	require.NoError(t, err)
	assert.Equal(t, 40, lote.Processados)

	for i, item := range lote.Itens {
		require.True(t, item.Sucesso, "documento %d falhou: %s", i, item.Erro)
		assert.Equal(t, fmt.Sprintf("%d", i), item.Resultado.NumeroNota)
	}
}
