// package nfe/parser.go
package nfe

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"tributario-service/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Erros estruturais do parse de NF-e.
var (
	// ErrXMLMalformado indica que o conteúdo nem sequer é XML bem formado.
	ErrXMLMalformado = errors.New("XML malformado")
	// ErrDocumentoInvalido indica que o XML não é reconhecível como NF-e/NFC-e.
	ErrDocumentoInvalido = errors.New("arquivo não é uma NF-e ou NFC-e válida")
)

// marcadores de raiz aceitos para NF-e e NFC-e
var marcadoresNFe = map[string]bool{
	"infNFe":  true,
	"NFe":     true,
	"nfeProc": true,
}

// Parser extrai uma NotaFiscal estruturada do XML bruto de NF-e/NFC-e,
// tolerando as variações de namespace encontradas em documentos reais.
type Parser struct {
	logger *zap.Logger
}

// NewParser cria um novo parser de notas fiscais.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// ValidarEstrutura verifica se o XML contém algum marcador estrutural de
// NF-e/NFC-e. Os nomes são comparados pelo nome local, com e sem namespace;
// na falta de casamento exato há uma varredura flexível por substring sobre
// todas as tags do documento.
func (p *Parser) ValidarEstrutura(conteudo []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(conteudo))
	flexivel := false
	encontrouElemento := false

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("%w: %v", ErrXMLMalformado, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		encontrouElemento = true
		local := se.Name.Local
		if marcadoresNFe[local] {
			return nil
		}
		if strings.Contains(local, "infNFe") || strings.Contains(local, "NFe") {
			flexivel = true
		}
	}

	if flexivel {
		return nil
	}
	if !encontrouElemento {
		return fmt.Errorf("%w: nenhum elemento encontrado", ErrXMLMalformado)
	}
	return ErrDocumentoInvalido
}

// Parse faz o parse completo da nota fiscal. Erros estruturais (XML
// malformado, ausência de marcador de NF-e, ausência do bloco de itens) são
// fatais; campos opcionais ausentes degradam para valores padrão e ficam
// registrados em NotaFiscal.Avisos.
func (p *Parser) Parse(conteudo []byte) (*domain.NotaFiscal, error) {
	if err := p.checarSintaxe(conteudo); err != nil {
		return nil, err
	}
	if err := p.ValidarEstrutura(conteudo); err != nil {
		return nil, err
	}

	infNFe, chaveProtocolo, err := p.localizarInfNFe(conteudo)
	if err != nil {
		return nil, err
	}
	if len(infNFe.Det) == 0 {
		return nil, fmt.Errorf("%w: bloco de itens (det) não encontrado", ErrDocumentoInvalido)
	}

	nota := &domain.NotaFiscal{
		Numero:                  strings.TrimSpace(infNFe.Ide.NNF),
		Serie:                   strings.TrimSpace(infNFe.Ide.Serie),
		DataEmissao:             extrairData(infNFe.Ide.DhEmi, infNFe.Ide.DEmi),
		ChaveAcesso:             chaveAcesso(infNFe.ID, chaveProtocolo),
		CNPJEmitente:            strings.TrimSpace(infNFe.Emit.CNPJ),
		RazaoSocialEmitente:     strings.TrimSpace(infNFe.Emit.XNome),
		CNPJDestinatario:        documentoDestinatario(infNFe.Dest),
		RazaoSocialDestinatario: strings.TrimSpace(infNFe.Dest.XNome),
	}

	if infNFe.Total != nil {
		nota.ValorTotalProdutos = p.decimalSeguro(infNFe.Total.ICMSTot.VProd, decimal.Zero, "total/vProd", nota)
		nota.ValorTotalNota = p.decimalSeguro(infNFe.Total.ICMSTot.VNF, decimal.Zero, "total/vNF", nota)
	}

	// Itens na ordem de declaração do documento. O número de sequência vem
	// dessa ordem (1, 2, 3, ...), nunca de artefatos de serialização.
	for i, det := range infNFe.Det {
		numero := i + 1
		if det.Prod == nil {
			continue
		}
		item := domain.ItemNota{
			Numero:        numero,
			Descricao:     strings.TrimSpace(det.Prod.XProd),
			NCM:           strings.TrimSpace(det.Prod.NCM),
			CFOP:          strings.TrimSpace(det.Prod.CFOP),
			Unidade:       strings.TrimSpace(det.Prod.UCom),
			Quantidade:    p.decimalSeguro(det.Prod.QCom, decimal.NewFromInt(1), fmt.Sprintf("item %d qCom", numero), nota),
			ValorUnitario: p.decimalSeguro(det.Prod.VUnCom, decimal.Zero, fmt.Sprintf("item %d vUnCom", numero), nota),
			ValorTotal:    p.decimalSeguro(det.Prod.VProd, decimal.Zero, fmt.Sprintf("item %d vProd", numero), nota),
		}
		if det.Imposto != nil {
			item.Tributos = p.extrairTributos(det.Imposto, numero, nota)
		}
		nota.Itens = append(nota.Itens, item)
	}

	return nota, nil
}

// checarSintaxe garante que o conteúdo é XML bem formado antes de qualquer
// extração de campo.
func (p *Parser) checarSintaxe(conteudo []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(conteudo))
	for {
		_, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrXMLMalformado, err)
		}
	}
}

// localizarInfNFe encontra o bloco infNFe independente do elemento raiz
// (nfeProc, NFe ou o próprio infNFe).
func (p *Parser) localizarInfNFe(conteudo []byte) (*xmlInfNFe, string, error) {
	var doc xmlDocumento
	if err := xml.Unmarshal(conteudo, &doc); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrXMLMalformado, err)
	}

	chave := strings.TrimSpace(doc.ProtNFe.InfProt.ChNFe)
	if doc.NFe != nil && doc.NFe.InfNFe != nil {
		return doc.NFe.InfNFe, chave, nil
	}
	if doc.InfNFe != nil {
		return doc.InfNFe, chave, nil
	}

	// raiz pode ser o próprio infNFe
	var inf xmlInfNFe
	if err := xml.Unmarshal(conteudo, &inf); err == nil && len(inf.Det) > 0 {
		return &inf, chave, nil
	}

	return nil, "", fmt.Errorf("%w: estrutura infNFe não encontrada", ErrDocumentoInvalido)
}

// extrairTributos extrai os tributos de um item. Blocos zerados sem CST são
// descartados (placeholders comuns em emissores reais).
func (p *Parser) extrairTributos(imposto *xmlImposto, numeroItem int, nota *domain.NotaFiscal) []domain.Tributo {
	var tributos []domain.Tributo

	grupos := []struct {
		tipo       string
		containers []xmlGrupoTributo
	}{
		{domain.TributoPIS, imposto.PIS},
		{domain.TributoCOFINS, imposto.COFINS},
		{domain.TributoIPI, imposto.IPI},
		{domain.TributoICMS, imposto.ICMS},
	}

	for _, grupo := range grupos {
		for _, cont := range grupo.containers {
			if t, ok := p.tributoDoGrupo(grupo.tipo, cont, numeroItem, nota); ok {
				tributos = append(tributos, t)
			}
		}
	}

	if imposto.ISSQN != nil {
		campo := fmt.Sprintf("item %d ISSQN", numeroItem)
		valor := p.decimalSeguro(imposto.ISSQN.VISSQN, decimal.Zero, campo, nota)
		if valor.IsPositive() {
			aliq := p.decimalSeguro(imposto.ISSQN.VAliq, decimal.Zero, campo, nota)
			tributos = append(tributos, domain.Tributo{
				Tipo:        domain.TributoISS,
				BaseCalculo: p.decimalSeguro(imposto.ISSQN.VBC, decimal.Zero, campo, nota),
				Aliquota:    fracao(aliq),
				Valor:       valor,
			})
		}
	}

	return tributos
}

// tributoDoGrupo consolida as variantes de sub-esquema de um contêiner de
// tributo (PISAliq/PISNT, ICMS00/ICMSSN101, IPITrib, ...) em um único
// registro. Pode haver legitimamente mais de um contêiner por tipo.
func (p *Parser) tributoDoGrupo(tipo string, cont xmlGrupoTributo, numeroItem int, nota *domain.NotaFiscal) (domain.Tributo, bool) {
	var cst, valorStr, baseStr, aliqStr string

	for _, v := range cont.Variantes {
		if cst == "" {
			if c := strings.TrimSpace(v.CST); c != "" {
				cst = c
			} else if c := strings.TrimSpace(v.CSOSN); c != "" {
				cst = c
			}
		}
		if valorStr == "" {
			valorStr = valorDaVariante(tipo, v)
		}
		if baseStr == "" {
			baseStr = strings.TrimSpace(v.VBC)
		}
		if aliqStr == "" {
			aliqStr = aliquotaDaVariante(tipo, v)
		}
	}

	campo := fmt.Sprintf("item %d %s", numeroItem, tipo)
	valor := p.decimalSeguro(valorStr, decimal.Zero, campo, nota)
	if !valor.IsPositive() && cst == "" {
		return domain.Tributo{}, false
	}

	aliquota := p.decimalSeguro(aliqStr, decimal.Zero, campo, nota)
	return domain.Tributo{
		Tipo:        tipo,
		CST:         cst,
		BaseCalculo: p.decimalSeguro(baseStr, decimal.Zero, campo, nota),
		Aliquota:    fracao(aliquota),
		Valor:       valor,
	}, true
}

func valorDaVariante(tipo string, v xmlVariante) string {
	switch tipo {
	case domain.TributoPIS:
		return strings.TrimSpace(v.VPIS)
	case domain.TributoCOFINS:
		return strings.TrimSpace(v.VCOFINS)
	case domain.TributoIPI:
		return strings.TrimSpace(v.VIPI)
	case domain.TributoICMS:
		if s := strings.TrimSpace(v.VICMS); s != "" {
			return s
		}
		return strings.TrimSpace(v.VCredICMSSN)
	}
	return ""
}

func aliquotaDaVariante(tipo string, v xmlVariante) string {
	switch tipo {
	case domain.TributoPIS:
		return strings.TrimSpace(v.PPIS)
	case domain.TributoCOFINS:
		return strings.TrimSpace(v.PCOFINS)
	case domain.TributoIPI:
		return strings.TrimSpace(v.PIPI)
	case domain.TributoICMS:
		return strings.TrimSpace(v.PICMS)
	}
	return ""
}

// fracao converte uma alíquota percentual (ex: 18.00) para fração (0.18).
func fracao(percentual decimal.Decimal) decimal.Decimal {
	if percentual.IsPositive() {
		return percentual.Div(decimal.NewFromInt(100))
	}
	return decimal.Zero
}

// decimalSeguro converte texto para decimal tolerando caracteres estranhos e
// os formatos brasileiro (1.234,56) e anglo (1,234.56). Em entrada
// irrecuperável devolve o padrão informado e registra um aviso na nota —
// nunca interrompe o parse.
func (p *Parser) decimalSeguro(valor string, padrao decimal.Decimal, campo string, nota *domain.NotaFiscal) decimal.Decimal {
	d, ok := ConverterDecimal(valor)
	if !ok {
		if strings.TrimSpace(valor) != "" {
			aviso := fmt.Sprintf("valor numérico inválido em %s: %q (usado padrão %s)", campo, valor, padrao.String())
			nota.Avisos = append(nota.Avisos, aviso)
			p.logger.Warn("valor numérico substituído por padrão",
				zap.String("campo", campo), zap.String("valor", valor))
		}
		return padrao
	}
	return d
}

// ConverterDecimal aplica a heurística de separadores: havendo vírgula e
// ponto, o que aparece por último é o separador decimal; só vírgula com até
// duas casas é decimal brasileiro; caso contrário vírgula é separador de
// milhares. Retorna false quando não sobra dígito aproveitável.
func ConverterDecimal(valor string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(valor)
	if s == "" {
		return decimal.Zero, false
	}

	// mantém apenas dígitos, separadores e sinal
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" || s == "-" {
		return decimal.Zero, false
	}

	ultimoPonto := strings.LastIndex(s, ".")
	ultimaVirgula := strings.LastIndex(s, ",")

	switch {
	case ultimaVirgula >= 0 && ultimoPonto >= 0:
		if ultimaVirgula > ultimoPonto {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case ultimaVirgula >= 0:
		partes := strings.Split(s, ",")
		if len(partes) == 2 && len(partes[1]) <= 2 {
			s = partes[0] + "." + partes[1]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Count(s, ".") > 1:
		partes := strings.Split(s, ".")
		s = strings.Join(partes[:len(partes)-1], "") + "." + partes[len(partes)-1]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func extrairData(dhEmi, dEmi string) string {
	data := strings.TrimSpace(dhEmi)
	if data == "" {
		data = strings.TrimSpace(dEmi)
	}
	if len(data) > 10 {
		return data[:10]
	}
	return data
}

func chaveAcesso(id, chaveProtocolo string) string {
	chave := strings.TrimPrefix(strings.TrimSpace(id), "NFe")
	if chave == "" {
		chave = chaveProtocolo
	}
	return chave
}

func documentoDestinatario(dest xmlParte) string {
	if cnpj := strings.TrimSpace(dest.CNPJ); cnpj != "" {
		return cnpj
	}
	return strings.TrimSpace(dest.CPF)
}
