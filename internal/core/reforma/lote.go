// package reforma/lote.go
package reforma

import (
	"errors"
	"runtime"
	"sync"

	"tributario-service/internal/core/cst"
	"tributario-service/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrLoteSemSucesso indica que nenhum documento do lote pôde ser processado.
var ErrLoteSemSucesso = errors.New("nenhum documento do lote foi processado com sucesso")

// DocumentoLote é um XML de nota fiscal a processar em lote.
type DocumentoLote struct {
	Nome     string
	Conteudo []byte
}

// ItemLote é o desfecho de um documento do lote: ou um comparativo, ou o
// motivo legível da falha. Documentos que falham não interrompem os demais.
type ItemLote struct {
	ID        string                       `json:"id"`
	Nome      string                       `json:"nome"`
	Sucesso   bool                         `json:"sucesso"`
	Resultado *domain.ResultadoComparativo `json:"resultado,omitempty"`
	Erro      string                       `json:"erro,omitempty"`
	Avisos    []string                     `json:"avisos,omitempty"`
	// TributosEstimados aproxima a carga legada pela tabela de alíquotas
	// quando a nota não declara nenhum tributo; a comparação em si continua
	// partindo dos valores declarados (zero, nesse caso).
	TributosEstimados map[string]decimal.Decimal `json:"tributos_estimados,omitempty"`
}

// ResultadoLote agrega o processamento de um lote de documentos.
type ResultadoLote struct {
	Processados int        `json:"processados"`
	Falhas      int        `json:"falhas"`
	Itens       []ItemLote `json:"itens"`
}

// CompararLote faz parse e comparativo de cada documento de forma
// independente, em paralelo. A tabela e a configuração são somente leitura
// durante todo o lote, então os workers não precisam de coordenação. A ordem
// dos itens no resultado segue a ordem de entrada. Lote sem nenhum sucesso
// devolve o resultado acompanhado de ErrLoteSemSucesso.
func (s *service) CompararLote(docs []DocumentoLote, tabela *cst.Tabela, cfg domain.ConfigReforma) (*ResultadoLote, error) {
	if tabela == nil {
		return nil, ErrTabelaCSTAusente
	}
	lote := &ResultadoLote{Itens: make([]ItemLote, len(docs))}
	if len(docs) == 0 {
		return lote, ErrLoteSemSucesso
	}

	workers := runtime.NumCPU()
	if workers > len(docs) {
		workers = len(docs)
	}

	trabalhos := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range trabalhos {
				lote.Itens[i] = s.processarDocumento(docs[i], tabela, cfg)
			}
		}()
	}
	for i := range docs {
		trabalhos <- i
	}
	close(trabalhos)
	wg.Wait()

	for _, item := range lote.Itens {
		if item.Sucesso {
			lote.Processados++
		} else {
			lote.Falhas++
		}
	}

	s.logger.Info("lote processado",
		zap.Int("documentos", len(docs)),
		zap.Int("processados", lote.Processados),
		zap.Int("falhas", lote.Falhas))

	if lote.Processados == 0 {
		return lote, ErrLoteSemSucesso
	}
	return lote, nil
}

func (s *service) processarDocumento(doc DocumentoLote, tabela *cst.Tabela, cfg domain.ConfigReforma) ItemLote {
	item := ItemLote{ID: uuid.NewString(), Nome: doc.Nome}

	nota, err := s.parser.Parse(doc.Conteudo)
	if err != nil {
		s.logger.Warn("documento ignorado no lote",
			zap.String("documento", doc.Nome), zap.Error(err))
		item.Erro = err.Error()
		return item
	}

	resultado, err := s.Comparar(nota, tabela, cfg)
	if err != nil {
		item.Erro = err.Error()
		return item
	}

	item.Sucesso = true
	item.Resultado = resultado
	item.Avisos = nota.Avisos
	if semTributosLegados(nota) {
		item.TributosEstimados = s.EstimarTributosAtuais(nota)
	}
	return item
}

// semTributosLegados informa se a nota não declara nenhum tributo legado em
// item algum, o caso em que a carga atual zerada merece uma estimativa.
func semTributosLegados(nota *domain.NotaFiscal) bool {
	for _, tipo := range domain.TiposLegados {
		if !nota.GetTotalTributo(tipo).IsZero() {
			return false
		}
	}
	return true
}
