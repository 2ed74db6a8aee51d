// package cst/loader.go
package cst

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"tributario-service/internal/domain"

	"github.com/schollz/closestmatch"
	"github.com/shakinm/xlsReader/xls"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Erros de carga da tabela de classificação.
var (
	ErrTabelaVazia      = errors.New("tabela de classificação vazia")
	ErrCabecalhoAusente = errors.New("linha de cabeçalho com coluna CST não encontrada")
)

// Rótulos canônicos das colunas da planilha de CST.
const (
	colunaCST         = "CST"
	colunaCodigo      = "Código"
	colunaExigeTrib   = "Exige Trib"
	colunaMonofasica  = "Monofásica"
	colunaRedAliq     = "Red. Alíq"
	colunaDiferimento = "Diferimento"
	colunaRedCBS      = "% Red. CBS"
	colunaRedIBS      = "% Red. IBS"
)

// tokens afirmativos reconhecidos nas colunas booleanas (caso-insensível)
var tokensAfirmativos = map[string]bool{
	"SIM": true, "S": true, "TRUE": true, "VERDADEIRO": true, "1": true, "YES": true, "X": true,
}

// Tabela é o índice de regras por CST carregado da planilha. Imutável após a
// carga; segura para leitura concorrente.
type Tabela struct {
	regras map[string]domain.RegraCST
	// índice secundário com zeros à esquerda removidos, para absorver
	// diferenças de formatação entre a planilha e o XML
	semZeros map[string]domain.RegraCST
	total    int
}

// TabelaPadrao devolve uma tabela vazia: toda busca resolve para a regra
// padrão (tributação exigida, nenhuma redução). É a forma explícita de rodar
// o comparativo sem planilha carregada.
func TabelaPadrao() *Tabela {
	return &Tabela{
		regras:   map[string]domain.RegraCST{},
		semZeros: map[string]domain.RegraCST{},
	}
}

// Total devolve a quantidade de regras carregadas.
func (t *Tabela) Total() int { return t.total }

// Buscar resolve a regra de um CST: casamento exato da string aparada,
// depois o índice sem zeros à esquerda, por fim a regra padrão. O resultado
// é determinístico para qualquer entrada.
func (t *Tabela) Buscar(cst string) domain.RegraCST {
	limpo := strings.TrimSpace(cst)
	if regra, ok := t.regras[limpo]; ok {
		return regra
	}
	if regra, ok := t.semZeros[strings.TrimLeft(limpo, "0")]; ok {
		return regra
	}
	return domain.RegraPadrao()
}

// Loader normaliza uma planilha de classificação (xls/xlsx/csv) em uma
// Tabela de regras por CST.
type Loader struct {
	fuzzy     *closestmatch.ClosestMatch
	canonicos map[string]string // rótulo normalizado -> rótulo canônico
}

// NewLoader cria um novo carregador de tabelas CST.
func NewLoader() *Loader {
	labels := []string{colunaExigeTrib, colunaMonofasica, colunaRedAliq, colunaDiferimento, colunaRedCBS, colunaRedIBS}
	canonicos := make(map[string]string, len(labels))
	normalizados := make([]string, 0, len(labels))
	for _, l := range labels {
		n := normalizarRotulo(l)
		canonicos[n] = l
		normalizados = append(normalizados, n)
	}
	return &Loader{
		fuzzy:     closestmatch.New(normalizados, []int{2, 3}),
		canonicos: canonicos,
	}
}

// CarregarArquivo lê a planilha pelo formato indicado na extensão do nome do
// arquivo (.xlsx, .xls ou .csv) e delega para CarregarLinhas.
func (l *Loader) CarregarArquivo(r io.Reader, nomeArquivo string) (*Tabela, error) {
	linhas, err := lerLinhas(r, nomeArquivo)
	if err != nil {
		return nil, err
	}
	return l.CarregarLinhas(linhas)
}

// CarregarLinhas monta a Tabela a partir das linhas brutas da planilha. A
// primeira linha contendo a coluna de código (CST ou Código) é o cabeçalho;
// tudo acima é descartado.
func (l *Loader) CarregarLinhas(linhas [][]string) (*Tabela, error) {
	if len(linhas) == 0 {
		return nil, ErrTabelaVazia
	}

	idxCabecalho, idxCodigo := localizarCabecalho(linhas)
	if idxCabecalho < 0 {
		return nil, ErrCabecalhoAusente
	}

	colunas := l.mapearColunas(linhas[idxCabecalho])

	tabela := &Tabela{
		regras:   map[string]domain.RegraCST{},
		semZeros: map[string]domain.RegraCST{},
	}

	for _, linha := range linhas[idxCabecalho+1:] {
		if idxCodigo >= len(linha) {
			continue
		}
		codigo := strings.TrimSpace(linha[idxCodigo])
		if codigo == "" {
			continue
		}

		regra := domain.RegraCST{
			CST:             codigo,
			ExigeTributacao: lerFlag(linha, colunas, colunaExigeTrib),
			Monofasica:      lerFlag(linha, colunas, colunaMonofasica),
			ReducaoAliquota: lerFlag(linha, colunas, colunaRedAliq),
			Diferimento:     lerFlag(linha, colunas, colunaDiferimento),
			ReducaoCBS:      lerPercentual(linha, colunas, colunaRedCBS),
			ReducaoIBS:      lerPercentual(linha, colunas, colunaRedIBS),
		}

		// primeira ocorrência vence, para manter a busca determinística
		if _, existe := tabela.regras[codigo]; !existe {
			tabela.regras[codigo] = regra
			tabela.total++
		}
		chave := strings.TrimLeft(codigo, "0")
		if _, existe := tabela.semZeros[chave]; !existe {
			tabela.semZeros[chave] = regra
		}
	}

	if tabela.total == 0 {
		return nil, fmt.Errorf("%w: nenhuma linha de regra abaixo do cabeçalho", ErrTabelaVazia)
	}
	return tabela, nil
}

// localizarCabecalho varre as linhas de cima para baixo procurando a coluna
// de código. Casamento literal primeiro; substring "CST" como último recurso.
func localizarCabecalho(linhas [][]string) (linha, coluna int) {
	for i, l := range linhas {
		for j, celula := range l {
			v := strings.TrimSpace(celula)
			if v == colunaCST || v == colunaCodigo {
				return i, j
			}
		}
	}
	for i, l := range linhas {
		for j, celula := range l {
			if strings.Contains(celula, colunaCST) {
				return i, j
			}
		}
	}
	return -1, -1
}

// mapearColunas resolve cada rótulo do cabeçalho para um rótulo canônico:
// igualdade aparada, depois igualdade normalizada (sem acentos), por fim
// casamento aproximado desde que compartilhe um token com o candidato.
// Colunas sem nome são descartadas.
func (l *Loader) mapearColunas(cabecalho []string) map[string]int {
	colunas := make(map[string]int)
	atribuir := func(canonico string, idx int) {
		if _, tomado := colunas[canonico]; !tomado {
			colunas[canonico] = idx
		}
	}

	for idx, celula := range cabecalho {
		rotulo := strings.TrimSpace(celula)
		if rotulo == "" || rotulo == colunaCST || rotulo == colunaCodigo {
			continue
		}

		switch rotulo {
		case colunaExigeTrib, colunaMonofasica, colunaRedAliq, colunaDiferimento, colunaRedCBS, colunaRedIBS:
			atribuir(rotulo, idx)
			continue
		}

		n := normalizarRotulo(rotulo)
		if canonico, ok := l.canonicos[n]; ok {
			atribuir(canonico, idx)
			continue
		}

		if aproximado := l.fuzzy.Closest(n); aproximado != "" && compartilhaToken(n, aproximado) {
			atribuir(l.canonicos[aproximado], idx)
		}
	}
	return colunas
}

// compartilhaToken exige que rótulo e candidato tenham ao menos uma palavra
// (3+ caracteres) em comum antes de aceitar o casamento aproximado.
func compartilhaToken(a, b string) bool {
	tokens := map[string]bool{}
	for _, t := range strings.Fields(a) {
		if len(t) >= 3 {
			tokens[t] = true
		}
	}
	for _, t := range strings.Fields(b) {
		if len(t) >= 3 && tokens[t] {
			return true
		}
	}
	return false
}

func lerFlag(linha []string, colunas map[string]int, nome string) bool {
	v, ok := celula(linha, colunas, nome)
	if !ok {
		return false
	}
	return tokensAfirmativos[strings.ToUpper(strings.TrimSpace(v))]
}

// lerPercentual converte "12%", "12,5" ou "12.5" para fração (0.12, 0.125).
// Valores ausentes ou inválidos viram 0; o resultado fica preso em [0,1].
func lerPercentual(linha []string, colunas map[string]int, nome string) decimal.Decimal {
	v, ok := celula(linha, colunas, nome)
	if !ok {
		return decimal.Zero
	}
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%"))
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	d = d.Div(decimal.NewFromInt(100))
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return d
}

func celula(linha []string, colunas map[string]int, nome string) (string, bool) {
	idx, ok := colunas[nome]
	if !ok || idx < 0 || idx >= len(linha) {
		return "", false
	}
	return linha[idx], true
}

// normalizarRotulo remove acentos e pontuação e colapsa espaços, no mesmo
// espírito do normalizador de descrições dos conversores.
func normalizarRotulo(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}))
	resultado, _, _ := transform.String(t, s)
	resultado = strings.ToUpper(resultado)

	var b strings.Builder
	for _, r := range resultado {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ---------------------- leitura de arquivos ----------------------

func lerLinhas(r io.Reader, nomeArquivo string) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(nomeArquivo))
	switch ext {
	case ".xlsx":
		return lerXLSX(r)
	case ".xls":
		return lerXLS(r)
	case ".csv":
		return lerCSV(r)
	default:
		return nil, fmt.Errorf("formato de planilha não suportado: %s", ext)
	}
}

func lerXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir planilha .xlsx: %w", err)
	}
	defer f.Close()

	nomes := f.GetSheetList()
	if len(nomes) == 0 {
		return nil, ErrTabelaVazia
	}
	return f.GetRows(nomes[0])
}

func lerXLS(r io.Reader) ([][]string, error) {
	dados, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	workbook, err := xls.OpenReader(bytes.NewReader(dados))
	if err != nil {
		// pode ser um xlsx com extensão errada
		if linhas, errX := lerXLSX(bytes.NewReader(dados)); errX == nil {
			return linhas, nil
		}
		return nil, fmt.Errorf("erro ao abrir planilha .xls: %w", err)
	}

	if len(workbook.GetSheets()) == 0 {
		return nil, ErrTabelaVazia
	}
	sheet, err := workbook.GetSheet(0)
	if err != nil {
		return nil, fmt.Errorf("erro ao obter planilha do arquivo .xls: %w", err)
	}

	var linhas [][]string
	for _, row := range sheet.GetRows() {
		var linha []string
		for _, cell := range row.GetCols() {
			linha = append(linha, cell.GetString())
		}
		linhas = append(linhas, linha)
	}
	return linhas, nil
}

// lerCSV aceita CSV em UTF-8 (com ou sem BOM) ou em ISO8859-1, o padrão das
// planilhas brasileiras. Bytes que não formam UTF-8 válido passam pelo charmap.
func lerCSV(r io.Reader) ([][]string, error) {
	dados, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	dados = bytes.TrimPrefix(dados, []byte("\xef\xbb\xbf"))

	if !utf8.Valid(dados) {
		decodificado, err := charmap.ISO8859_1.NewDecoder().Bytes(dados)
		if err != nil {
			return nil, fmt.Errorf("erro ao decodificar CSV ISO8859-1: %w", err)
		}
		dados = decodificado
	}

	reader := csv.NewReader(bytes.NewReader(dados))
	reader.Comma = ';'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}
