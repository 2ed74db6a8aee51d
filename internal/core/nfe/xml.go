package nfe

import "encoding/xml"

// Estruturas internas de desserialização do XML da NF-e/NFC-e. Os campos
// numéricos ficam como string e são convertidos com tolerância pelo parser.
// As tags sem namespace casam pelo nome local, o que cobre documentos com e
// sem prefixo de namespace.

type xmlDocumento struct {
	NFe     *xmlNFe    `xml:"NFe"`
	InfNFe  *xmlInfNFe `xml:"infNFe"`
	ProtNFe struct {
		InfProt struct {
			ChNFe string `xml:"chNFe"`
		} `xml:"infProt"`
	} `xml:"protNFe"`
}

type xmlNFe struct {
	InfNFe *xmlInfNFe `xml:"infNFe"`
}

type xmlInfNFe struct {
	ID    string    `xml:"Id,attr"`
	Ide   xmlIde    `xml:"ide"`
	Emit  xmlParte  `xml:"emit"`
	Dest  xmlParte  `xml:"dest"`
	Det   []xmlDet  `xml:"det"`
	Total *xmlTotal `xml:"total"`
}

type xmlIde struct {
	NNF   string `xml:"nNF"`
	Serie string `xml:"serie"`
	DhEmi string `xml:"dhEmi"`
	DEmi  string `xml:"dEmi"`
}

type xmlParte struct {
	CNPJ  string `xml:"CNPJ"`
	CPF   string `xml:"CPF"`
	XNome string `xml:"xNome"`
}

type xmlTotal struct {
	ICMSTot struct {
		VProd string `xml:"vProd"`
		VNF   string `xml:"vNF"`
	} `xml:"ICMSTot"`
}

type xmlDet struct {
	NItem   string      `xml:"nItem,attr"`
	Prod    *xmlProd    `xml:"prod"`
	Imposto *xmlImposto `xml:"imposto"`
}

type xmlProd struct {
	XProd  string `xml:"xProd"`
	NCM    string `xml:"NCM"`
	CFOP   string `xml:"CFOP"`
	UCom   string `xml:"uCom"`
	QCom   string `xml:"qCom"`
	VUnCom string `xml:"vUnCom"`
	VProd  string `xml:"vProd"`
}

type xmlImposto struct {
	PIS    []xmlGrupoTributo `xml:"PIS"`
	COFINS []xmlGrupoTributo `xml:"COFINS"`
	IPI    []xmlGrupoTributo `xml:"IPI"`
	ICMS   []xmlGrupoTributo `xml:"ICMS"`
	ISSQN  *xmlISSQN         `xml:"ISSQN"`
}

// xmlGrupoTributo captura o contêiner de um tributo (PIS, COFINS, IPI, ICMS)
// com suas variantes de sub-esquema (PISAliq, PISNT, ICMS00, ICMSSN101,
// IPITrib, ...). A tag ",any" absorve qualquer variante sem enumerá-las.
type xmlGrupoTributo struct {
	Variantes []xmlVariante `xml:",any"`
}

type xmlVariante struct {
	XMLName     xml.Name
	CST         string `xml:"CST"`
	CSOSN       string `xml:"CSOSN"`
	VBC         string `xml:"vBC"`
	VPIS        string `xml:"vPIS"`
	PPIS        string `xml:"pPIS"`
	VCOFINS     string `xml:"vCOFINS"`
	PCOFINS     string `xml:"pCOFINS"`
	VIPI        string `xml:"vIPI"`
	PIPI        string `xml:"pIPI"`
	VICMS       string `xml:"vICMS"`
	PICMS       string `xml:"pICMS"`
	VCredICMSSN string `xml:"vCredICMSSN"`
}

type xmlISSQN struct {
	VBC    string `xml:"vBC"`
	VAliq  string `xml:"vAliq"`
	VISSQN string `xml:"vISSQN"`
}
