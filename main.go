package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/barefootzenith/refund-agent/agent/agents/coordinator"
	"github.com/barefootzenith/refund-agent/agent/agents/policy"
	"github.com/barefootzenith/refund-agent/agent/agents/transaction"
	contractx "github.com/barefootzenith/refund-agent/agent/contract"
	"github.com/barefootzenith/refund-agent/agent/datastore"
	"github.com/barefootzenith/refund-agent/agent/handler"
	"github.com/barefootzenith/refund-agent/agent/memory"
	"github.com/barefootzenith/refund-agent/agent/retrieval"
	configx "github.com/barefootzenith/refund-agent/pkg/config"
	"github.com/barefootzenith/refund-agent/pkg/genai"
	"github.com/barefootzenith/refund-agent/pkg/langfuse"
	_ "github.com/barefootzenith/refund-agent/pkg/logger/autoload"
	"github.com/barefootzenith/refund-agent/pkg/resilience"
)

type AppConfig struct {
	// PostgresDSN switches the order store from the seeded in-memory
	// fixtures to a real database when set.
	PostgresDSN string `envconfig:"POSTGRES_DSN" split_words:"true"`

	CallTimeout   time.Duration `envconfig:"CALL_TIMEOUT" split_words:"true" default:"30s"`
	EmbeddingLRU  int           `envconfig:"EMBEDDING_CACHE_SIZE" split_words:"true" default:"128"`
	RetrievalTopK int           `envconfig:"RETRIEVAL_TOP_K" split_words:"true" default:"3"`
}

// confirmationWords covers English and Spanish affirmatives.
var confirmationWords = []string{
	"yes", "si", "sí", "ok", "confirmar", "confirmo",
	"proceder", "adelante", "vale", "afirmativo", "correcto",
}

func isConfirmation(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, word := range confirmationWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func main() {
	appCfg := configx.MustNew[AppConfig]("APP")
	limits := configx.MustNew[resilience.Limits]("LIMIT")

	caller := resilience.NewCaller(
		resilience.NewLimiterSet(*limits),
		resilience.DefaultRetryPolicy(),
		appCfg.CallTimeout,
	)

	genaiCfg := configx.MustNew[genai.Config]("GENAI")
	llm, err := genai.New(*genaiCfg, caller)
	if err != nil {
		log.Fatal().Err(err).Msg("genai client init failed")
	}

	tracer := initTracer()
	store := initStore(*appCfg)

	searcher := retrieval.NewSearcher(
		retrieval.NewCache(appCfg.EmbeddingLRU),
		llm, store, caller, appCfg.RetrievalTopK,
	)

	transactionExec := transaction.NewExecutor(store, caller)
	policyHandler := handler.New(contractx.HandlerPolicy, policy.NewExecutor(searcher), tracer)
	transactionHandler := handler.New(contractx.HandlerTransaction, transactionExec, tracer)

	coord, err := coordinator.New(llm, []contractx.TaskHandler{policyHandler, transactionHandler}, tracer)
	if err != nil {
		log.Fatal().Err(err).Msg("coordinator init failed")
	}

	history := memory.NewHistory(memory.Config{
		MaxTokens:           16000,
		TargetTokens:        12000,
		KeepRecent:          8,
		EnableSummarization: true,
	}, llm)

	runChat(coord, transactionHandler, history)
}

func initTracer() contractx.Tracer {
	cfg := configx.MustNew[langfuse.Config]("LANGFUSE")
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		log.Info().Msg("langfuse keys not set, tracing disabled")
		return langfuse.Nop()
	}
	tracer, err := langfuse.New(*cfg)
	if err != nil {
		log.Warn().Err(err).Msg("langfuse init failed, tracing disabled")
		return langfuse.Nop()
	}
	return tracer
}

func initStore(cfg AppConfig) datastore.Store {
	if dsn := strings.TrimSpace(cfg.PostgresDSN); dsn != "" {
		store, err := datastore.NewPostgresStore(context.Background(), dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres store init failed")
		}
		log.Info().Msg("using postgres order store")
		return store
	}

	store := datastore.NewMemoryStore()
	store.Seed(datastore.SampleOrders(time.Now()), datastore.SamplePolicyChunks())
	log.Info().Msg("no POSTGRES_DSN set, using seeded in-memory store")
	return store
}

func runChat(coord *coordinator.Coordinator, transactionHandler contractx.TaskHandler, history *memory.History) {
	ctx := context.Background()
	sessionID := "session_" + uuid.NewString()

	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("BAREFOOT ZENITH - MULTI-AGENT REFUND SYSTEM")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Session ID: %s\n", sessionID)
	fmt.Println("\nType 'exit' to end the conversation.")
	fmt.Println("Type 'help' for example queries.")
	fmt.Println(strings.Repeat("-", 70))

	var pendingRefundOrderID string
	var pendingRefundAmount float64

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nYou: ")
		if !scanner.Scan() {
			fmt.Println("\nGoodbye! Session ended.")
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "exit":
			fmt.Println("\nGoodbye! Session ended.")
			return
		case "help":
			fmt.Println("\nExample queries:")
			fmt.Println("  - What is your refund policy?")
			fmt.Println("  - Can I return shoes if I've tried them indoors?")
			fmt.Println("  - I want to return my order ORD-84315")
			fmt.Println("  - Do you accept refunds after 14 days?")
			continue
		}

		history.Add(ctx, "user", input, nil)

		if pendingRefundOrderID != "" && isConfirmation(input) {
			processRefund(ctx, transactionHandler, history, pendingRefundOrderID, pendingRefundAmount)
			pendingRefundOrderID = ""
			pendingRefundAmount = 0
			continue
		}

		fmt.Println("\nProcessing...")
		result := coord.HandleTurn(ctx, input, history.Context(0))

		printTurnResult(result)

		history.Add(ctx, "assistant", result.Message, map[string]any{
			"intent":        string(result.Intent),
			"response_type": string(result.ResponseType),
		})

		if result.Eligibility != nil && result.Eligibility.Eligible &&
			result.ResponseType == contractx.ResponseRefundEligible &&
			result.ExtractedOrderID != "" {
			if amount, ok := lookupRefundAmount(ctx, transactionHandler, result.ExtractedOrderID); ok {
				pendingRefundOrderID = result.ExtractedOrderID
				pendingRefundAmount = amount
				fmt.Printf("\nReply 'yes' to confirm refund of $%.2f for order %s\n", amount, result.ExtractedOrderID)
			}
		}

		stats := history.Stats()
		fmt.Printf("\nLatency: %dms | Context: %d msgs, %d tokens\n",
			result.LatencyMS, stats.Messages, stats.TotalTokens)
	}
}

func printTurnResult(result contractx.TurnResult) {
	fmt.Printf("\n%s\n", titleCase(string(result.ResponseType)))
	fmt.Println(strings.Repeat("-", 70))
	fmt.Printf("\n%s\n", result.Message)

	if len(result.KeyDetails) > 0 {
		fmt.Println("\nKey Details:")
		for _, detail := range result.KeyDetails {
			fmt.Printf("  - %s\n", detail)
		}
	}
	if result.ActionRequired != "" {
		fmt.Printf("\nNext Step: %s\n", result.ActionRequired)
	}
	if len(result.AgentsCalled) > 0 {
		names := make([]string, len(result.AgentsCalled))
		for i, id := range result.AgentsCalled {
			names[i] = string(id)
		}
		fmt.Printf("\n[Consulted: %s]\n", strings.Join(names, ", "))
	}
	fmt.Println(strings.Repeat("-", 70))
}

func titleCase(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// lookupRefundAmount re-fetches the order and sums its item prices, which is
// the default refund amount offered for confirmation.
func lookupRefundAmount(ctx context.Context, transactionHandler contractx.TaskHandler, orderID string) (float64, bool) {
	resp := transactionHandler.Handle(ctx, contractx.TaskRequest{
		Target:  contractx.HandlerTransaction,
		Task:    contractx.TaskGetOrder,
		Context: map[string]any{"order_id": orderID},
	})
	if resp.Status != contractx.StatusSuccess {
		return 0, false
	}
	found, _ := resp.Result["found"].(bool)
	if !found {
		return 0, false
	}
	orderData, ok := resp.Result["order_data"].(map[string]any)
	if !ok {
		return 0, false
	}

	order, err := datastore.OrderFromMap(orderData)
	if err != nil {
		return 0, false
	}
	total := order.TotalPrice()
	return total, total > 0
}

func processRefund(ctx context.Context, transactionHandler contractx.TaskHandler, history *memory.History, orderID string, amount float64) {
	fmt.Println("\nProcessing refund...")

	resp := transactionHandler.Handle(ctx, contractx.TaskRequest{
		Target:  contractx.HandlerTransaction,
		Task:    contractx.TaskProcessRefund,
		Context: map[string]any{"order_id": orderID, "amount": amount},
	})

	var message string
	switch {
	case resp.Status != contractx.StatusSuccess:
		message = fmt.Sprintf("Error: %s", resp.Error)
	case resp.Result["success"] == true:
		message = fmt.Sprintf("Refund processed successfully! Transaction ID: %v, Amount: $%.2f",
			resp.Result["transaction_id"], amount)
		fmt.Printf("\n%s\n", message)
		fmt.Printf("   Order %s status -> RETURNED\n", orderID)
		fmt.Printf("   Refund date: %v\n", resp.Result["refund_date"])
		history.Add(ctx, "assistant", message, map[string]any{"response_type": "refund_processed"})
		return
	default:
		message = fmt.Sprintf("Refund failed: %v", resp.Result["error"])
	}

	fmt.Printf("\n%s\n", message)
	history.Add(ctx, "assistant", message, map[string]any{"response_type": "error"})
}
