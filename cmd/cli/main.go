package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeovahfialho/moex-history/internal/chart"
	"github.com/jeovahfialho/moex-history/internal/config"
	"github.com/jeovahfialho/moex-history/internal/domain"
	"github.com/jeovahfialho/moex-history/internal/ingestion"
	"github.com/jeovahfialho/moex-history/internal/service"
	"github.com/jeovahfialho/moex-history/internal/storage/cache"
	"github.com/jeovahfialho/moex-history/internal/storage/postgres"
	"github.com/jeovahfialho/moex-history/internal/storage/sqlite"
	"github.com/jeovahfialho/moex-history/pkg/logger"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "moex-history",
		Short: "MOEX ISS history CLI",
		Long: `CLI para consulta do histórico de negociação da Bolsa de Moscou.
Baixa o histórico paginado do ISS, exporta a tabela e gera gráficos.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			return logger.Init(cfg.LogLevel, "console", cfg.Development())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Comando fetch
	var fetchCmd = &cobra.Command{
		Use:   "fetch [categoria] [código]",
		Short: "Baixa o histórico de um papel",
		Long: `Baixa todas as páginas do histórico de um papel no intervalo informado
e grava a tabela normalizada em CSV (separador ';').
Categorias: shares (Акции), corporate_bonds, government_bonds (ОФЗ).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := fetchOptions{}
			opts.from, _ = cmd.Flags().GetString("from")
			opts.till, _ = cmd.Flags().GetString("till")
			opts.output, _ = cmd.Flags().GetString("output")
			opts.sqlitePath, _ = cmd.Flags().GetString("sqlite")
			opts.postgres, _ = cmd.Flags().GetBool("postgres")
			return fetchHistory(args[0], args[1], opts)
		},
	}

	fetchCmd.Flags().StringP("from", "f", time.Now().AddDate(0, -1, 0).Format(domain.DateLayout), "Data inicial (YYYY-MM-DD)")
	fetchCmd.Flags().StringP("till", "t", time.Now().Format(domain.DateLayout), "Data final (YYYY-MM-DD)")
	fetchCmd.Flags().StringP("output", "o", "", "Arquivo de saída (padrão: OUTPUT_FILE)")
	fetchCmd.Flags().String("sqlite", "", "Exporta também para um banco SQLite")
	fetchCmd.Flags().Bool("postgres", false, "Exporta também para o PostgreSQL (DATABASE_URL)")

	// Comando chart
	var chartCmd = &cobra.Command{
		Use:   "chart [price|volume]",
		Short: "Gera gráfico a partir de uma tabela exportada",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, _ := cmd.Flags().GetString("input")
			category, _ := cmd.Flags().GetString("category")
			title, _ := cmd.Flags().GetString("title")
			output, _ := cmd.Flags().GetString("output")
			format, _ := cmd.Flags().GetString("format")
			return renderChart(args[0], input, category, title, output, format)
		},
	}

	chartCmd.Flags().StringP("input", "i", "", "Tabela exportada (padrão: OUTPUT_FILE)")
	chartCmd.Flags().StringP("category", "c", string(domain.CategoryShare), "Categoria do papel")
	chartCmd.Flags().String("title", "", "Título do gráfico")
	chartCmd.Flags().StringP("output", "o", "", "Arquivo de saída (padrão: <tipo>.<formato>)")
	chartCmd.Flags().String("format", chart.FormatPNG, "Formato: png ou svg")

	// Comando batch
	var batchCmd = &cobra.Command{
		Use:   "batch [códigos...]",
		Short: "Baixa o histórico de vários papéis em paralelo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			from, _ := cmd.Flags().GetString("from")
			till, _ := cmd.Flags().GetString("till")
			dir, _ := cmd.Flags().GetString("dir")
			return batchFetch(category, args, from, till, dir)
		},
	}

	batchCmd.Flags().StringP("category", "c", string(domain.CategoryShare), "Categoria dos papéis")
	batchCmd.Flags().StringP("from", "f", time.Now().AddDate(0, -1, 0).Format(domain.DateLayout), "Data inicial (YYYY-MM-DD)")
	batchCmd.Flags().StringP("till", "t", time.Now().Format(domain.DateLayout), "Data final (YYYY-MM-DD)")
	batchCmd.Flags().StringP("dir", "d", "./data", "Diretório de saída")

	// Comando categories
	var categoriesCmd = &cobra.Command{
		Use:   "categories",
		Short: "Lista categorias e endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listCategories()
		},
	}

	// Comando health
	var healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Verifica saúde do sistema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkHealth()
		},
	}

	rootCmd.AddCommand(fetchCmd, chartCmd, batchCmd, categoriesCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

type fetchOptions struct {
	from, till string
	output     string
	sqlitePath string
	postgres   bool
}

func newFetcher(cfg *config.Config) (*ingestion.RequestBuilder, *ingestion.Fetcher, error) {
	endpoints, err := cfg.Endpoints()
	if err != nil {
		return nil, nil, err
	}

	builder := ingestion.NewRequestBuilder(endpoints)
	downloader := ingestion.NewDownloader(cfg.ISSHTTPTimeout)
	return builder, ingestion.NewFetcher(builder, downloader, cfg.ISSMaxPages), nil
}

func fetchHistory(category, code string, opts fetchOptions) error {
	ctx := context.Background()
	cfg := config.Load()

	criteria, err := domain.NewSearchCriteria(category, code, opts.from, opts.till)
	if err != nil {
		return fmt.Errorf("❌ %s", domain.UserMessage(err))
	}

	_, fetcher, err := newFetcher(cfg)
	if err != nil {
		return err
	}

	var sinks []service.HistorySink

	if opts.sqlitePath != "" {
		store, err := sqlite.Open(ctx, opts.sqlitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	if opts.postgres {
		db, err := postgres.NewDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, ingestion.NewBulkLoader(db.Pool()))
	}

	history := service.NewHistoryService(fetcher, sinks...)

	fmt.Printf("🔍 Buscando %s (%s) de %s a %s...\n",
		criteria.Code, criteria.Category.Label(),
		criteria.From.Format("02/01/2006"), criteria.Till.Format("02/01/2006"))

	start := time.Now()
	table, err := history.Search(ctx, criteria)
	if err != nil {
		return fmt.Errorf("❌ %s", domain.UserMessage(err))
	}

	if table.Len() == 0 {
		fmt.Println("⚠️  Nenhum pregão no intervalo informado")
	}

	output := opts.output
	if output == "" {
		output = cfg.OutputFile
	}
	if err := history.Export(ctx, table, output); err != nil {
		return err
	}

	fmt.Printf("\n📊 %s\n", table.Title())
	fmt.Printf("├─ Páginas: %d\n", table.Pages)
	fmt.Printf("├─ Linhas: %d\n", table.Len())
	if summary := domain.Summarize(table); summary.LastClose.Valid {
		fmt.Printf("├─ Fechamento: %s (mín %s, máx %s)\n",
			summary.LastClose.Decimal, summary.MinClose.Decimal, summary.MaxClose.Decimal)
		if summary.ChangePercent.Valid {
			fmt.Printf("├─ Variação: %s%%\n", summary.ChangePercent.Decimal)
		}
		fmt.Printf("├─ Volume total: %s RUB\n", summary.TotalValue.StringFixed(2))
	}
	fmt.Printf("├─ Tempo: %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("└─ Arquivo: %s\n", output)

	for _, sink := range sinks {
		fmt.Printf("✅ Exportado para %s\n", sink.Name())
	}

	fmt.Println("\n💡 Próximo passo: use 'chart price' ou 'chart volume' para gerar gráficos")
	return nil
}

func renderChart(kindArg, input, categoryArg, title, output, format string) error {
	ctx := context.Background()
	cfg := config.Load()

	kind, err := chart.ParseKind(kindArg)
	if err != nil {
		return fmt.Errorf("❌ %s", domain.UserMessage(err))
	}

	category, err := domain.ParseCategory(categoryArg)
	if err != nil {
		return fmt.Errorf("❌ %s", domain.UserMessage(err))
	}

	if input == "" {
		input = cfg.OutputFile
	}

	result, err := ingestion.NewParser().ReadTableFile(ctx, input)
	if err != nil {
		return fmt.Errorf("❌ Nenhum dado carregado: %w", err)
	}
	for _, rowErr := range result.Errors {
		fmt.Printf("⚠️  %v\n", rowErr)
	}

	table := result.Table(category)
	table.Code = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	table.ShortName = title

	if output == "" {
		output = fmt.Sprintf("%s.%s", kind, format)
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("erro ao criar arquivo: %w", err)
	}
	defer file.Close()

	if err := chart.Render(file, kind, table, format); err != nil {
		os.Remove(output)
		return fmt.Errorf("❌ %w", err)
	}

	fmt.Printf("📈 Gráfico salvo em %s (%d pontos)\n", output, len(chart.SeriesFor(kind, table).Points))
	return nil
}

func batchFetch(category string, codes []string, from, till, dir string) error {
	ctx := context.Background()
	cfg := config.Load()

	_, fetcher, err := newFetcher(cfg)
	if err != nil {
		return err
	}
	history := service.NewHistoryService(fetcher)

	pool := ingestion.NewWorkerPool(cfg.Workers, ingestion.HistoryFetcherFunc(history.Search))
	pool.Start(ctx)

	fmt.Printf("📥 Baixando %d papel(éis) com %d workers...\n\n", len(codes), cfg.Workers)

	results := make(chan ingestion.JobResult, len(codes))
	submitted := 0

	for _, code := range codes {
		criteria, err := domain.NewSearchCriteria(category, code, from, till)
		if err != nil {
			fmt.Printf("❌ %s: %s\n", code, domain.UserMessage(err))
			continue
		}
		pool.Submit(ingestion.Job{Criteria: criteria, Result: results})
		submitted++
	}

	var totalRows, failed int
	for i := 0; i < submitted; i++ {
		result := <-results
		code := result.Criteria.Code

		if result.Error != nil {
			fmt.Printf("❌ %s: %s\n", code, domain.UserMessage(result.Error))
			failed++
			continue
		}

		path := filepath.Join(dir, code+".csv")
		if err := history.Export(ctx, result.Table, path); err != nil {
			fmt.Printf("❌ %s: %v\n", code, err)
			failed++
			continue
		}

		totalRows += result.Table.Len()
		fmt.Printf("✅ %s: %d linhas em %s\n", code, result.Table.Len(), path)
	}

	pool.Stop()

	fmt.Printf("\n📊 Total: %d linhas, %d falha(s)\n", totalRows, failed+len(codes)-submitted)
	return nil
}

func listCategories() error {
	cfg := config.Load()

	builder, _, err := newFetcher(cfg)
	if err != nil {
		return err
	}

	fmt.Print("📂 Categorias disponíveis:\n\n")
	for _, category := range domain.Categories() {
		baseURL, err := builder.BaseURL(category)
		if err != nil {
			return err
		}
		fmt.Printf("  - %-17s %s\n", category, category.Label())
		fmt.Printf("    %s\n", baseURL)
	}
	return nil
}

func checkHealth() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cfg := config.Load()

	fmt.Print("🏥 Verificando saúde do sistema...\n\n")

	fmt.Print("ISS: ")
	builder, _, err := newFetcher(cfg)
	if err != nil {
		fmt.Printf("❌ Erro: %v\n", err)
	} else {
		till := time.Now().UTC().Truncate(24 * time.Hour)
		probe := domain.SearchCriteria{
			Category: domain.CategoryShare,
			Code:     "SBER",
			From:     till.AddDate(0, 0, -7),
			Till:     till,
		}
		url, _ := builder.URL(probe)
		if _, err := ingestion.NewDownloader(cfg.ISSHTTPTimeout).FetchPage(ctx, url); err != nil {
			fmt.Printf("❌ %s\n", domain.UserMessage(err))
		} else {
			fmt.Println("✅ OK")
		}
	}

	fmt.Print("PostgreSQL: ")
	if cfg.DatabaseURL == "" {
		fmt.Println("➖ Não configurado")
	} else if db, err := postgres.NewDB(cfg); err != nil {
		fmt.Printf("❌ Erro: %v\n", err)
	} else {
		if err := db.HealthCheck(ctx); err != nil {
			fmt.Printf("❌ Erro: %v\n", err)
		} else {
			fmt.Println("✅ OK")
		}
		db.Close()
	}

	fmt.Print("Redis: ")
	if cfg.RedisURL == "" {
		fmt.Println("➖ Não configurado")
	} else if redisCache, err := cache.NewRedisCache(cfg.RedisURL, "session:", cfg.SessionTTL); err != nil {
		fmt.Printf("❌ Erro: %v\n", err)
	} else {
		if err := redisCache.HealthCheck(ctx); err != nil {
			fmt.Printf("❌ Erro: %v\n", err)
		} else {
			fmt.Println("✅ OK")
		}
		redisCache.Close()
	}

	fmt.Println("\n✅ Verificação concluída!")
	return nil
}
