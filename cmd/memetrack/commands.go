package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tg-meme-pulse/internal/adapters/classifier"
	"tg-meme-pulse/internal/adapters/export"
	"tg-meme-pulse/internal/domain"
	"tg-meme-pulse/internal/usecase/pipeline"
)

// --- fetch ---

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Загрузить историю чатов по дням",
	Long: `Загружает сообщения по дням и сохраняет сырые и отфильтрованные файлы.

Примеры:
  memetrack fetch -p zyn --from 2024-10-01 --to 2024-10-21
  memetrack fetch -p zyn --from 2023-01-01 --direction backward`,
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := selectedProjects(cmd)
		if err != nil {
			return err
		}
		from, to, err := dateRange(cmd, false)
		if err != nil {
			return err
		}
		rawDir, _ := cmd.Flags().GetString("direction")
		dir, err := domain.ParseDirection(rawDir)
		if err != nil {
			return err
		}
		client := application.MTProto(stdinCode)
		return client.Run(cmd.Context(), func(ctx context.Context) error {
			b := application.Batcher(client)
			return eachProject(ctx, projects, os.Stderr, func(ctx context.Context, p domain.Project) error {
				unlock, err := application.Locker().Lock(ctx, p.Name)
				if err != nil {
					return err
				}
				report, err := b.Run(ctx, p, from, to, dir)
				_ = unlock()
				if err != nil {
					return err
				}
				fmt.Printf("%s: новых %d, пустых %d, пропущено %d, ошибок %d\n",
					p.Name, len(report.NonEmpty), len(report.Empty), len(report.Skipped), len(report.Failed))
				if report.StoppedAt != "" {
					fmt.Printf("%s: начало истории около %s\n", p.Name, report.StoppedAt)
				}
				return nil
			})
		})
	},
}

// --- classify ---

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Классифицировать сохранённые дни",
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := selectedProjects(cmd)
		if err != nil {
			return err
		}
		svc, err := application.Classifier()
		if err != nil {
			return err
		}
		if date, _ := cmd.Flags().GetString("date"); date != "" {
			if len(projects) != 1 {
				return fmt.Errorf("--date требует один проект")
			}
			day, err := svc.ClassifyDay(cmd.Context(), projects[0].Name, date)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s: %d сообщений, %d токенов\n", day.Project, day.Date, day.Input.SubmittedCount, day.Input.Tokens)
			return nil
		}
		from, to, err := dateRange(cmd, true)
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		return eachProject(cmd.Context(), projects, os.Stderr, func(ctx context.Context, p domain.Project) error {
			report, err := svc.ClassifyRange(ctx, p.Name, from, to, force)
			if err != nil {
				return err
			}
			fmt.Printf("%s: классифицировано %d, уже было %d, мало сообщений %d, отклонено %d, ошибок %d\n",
				p.Name, len(report.Classified), len(report.AlreadyDone), len(report.TooFew), len(report.SchemaErrors), len(report.Failed))
			return nil
		})
	},
}

// --- rollup ---

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Собрать свёртку классифицированных дней",
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := selectedProjects(cmd)
		if err != nil {
			return err
		}
		version := versionFlags(cmd)
		builder := application.Rollup()
		return eachProject(cmd.Context(), projects, os.Stderr, func(ctx context.Context, p domain.Project) error {
			doc, err := builder.Build(ctx, p.Name, version)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d дней\n", p.Name, len(doc.DateData))
			return nil
		})
	},
}

// --- price ---

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Загрузить дневные цены CoinGecko",
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := selectedProjects(cmd)
		if err != nil {
			return err
		}
		from, to, err := dateRange(cmd, true)
		if err != nil {
			return err
		}
		svc := application.Prices()
		return eachProject(cmd.Context(), projects, os.Stderr, func(ctx context.Context, p domain.Project) error {
			prices, err := svc.Fetch(ctx, p, from, to)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d дней цен\n", p.Name, len(prices))
			return nil
		})
	},
}

var priceSearchCmd = &cobra.Command{
	Use:   "search <запрос>",
	Short: "Найти идентификатор монеты CoinGecko для реестра",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := application.CoinGecko().Search(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if len(res.Coins) == 0 {
			fmt.Println("ничего не найдено")
			return nil
		}
		for _, c := range res.Coins {
			rank := "-"
			if c.MarketCapRank != nil {
				rank = strconv.Itoa(*c.MarketCapRank)
			}
			fmt.Printf("%s\t%s\t%s\t#%s\n", c.ID, c.Symbol, c.Name, rank)
		}
		return nil
	},
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Полный прогон: загрузка, классификация, свёртка, цены, выгрузка",
	Long: `Выполняет этапы для одного или всех проектов, каждый под блокировкой своего каталога.

Примеры:
  memetrack run -p zyn --from 2024-10-15 --to 2024-10-21
  memetrack run --all --parallel 3 --stages fetch,classify,rollup`,
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := selectedProjects(cmd)
		if err != nil {
			return err
		}
		from, to, err := dateRange(cmd, false)
		if err != nil {
			return err
		}
		rawDir, _ := cmd.Flags().GetString("direction")
		dir, err := domain.ParseDirection(rawDir)
		if err != nil {
			return err
		}
		rawStages, _ := cmd.Flags().GetString("stages")
		stages, err := domain.ParseStages(rawStages)
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		parallel, _ := cmd.Flags().GetInt("parallel")

		client := application.MTProto(stdinCode)
		return client.Run(cmd.Context(), func(ctx context.Context) error {
			runner, err := application.Runner(client)
			if err != nil {
				return err
			}
			jobs := pipeline.JobsFor(projects, from, to, dir, stages, force, time.Now().UTC())
			reports, err := runner.RunAll(ctx, jobs, parallel)
			for _, r := range reports {
				fmt.Print(r.Text())
			}
			return err
		})
	},
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Выгрузить свёртку и цены в xlsx",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("project")
		p, err := application.Registry.Get(name)
		if err != nil {
			return err
		}
		doc, err := application.Store.LoadRollup(p.Name, versionFlags(cmd))
		if err != nil {
			return err
		}
		prices, err := application.Store.LoadPrices(p.Name)
		if err != nil {
			prices = nil
		}
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = application.Exporter().Path(p.Name, versionFlags(cmd))
		}
		if err := export.WriteFile(out, doc, prices, classifier.MetricNames()); err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func versionFlags(cmd *cobra.Command) domain.Version {
	v := application.Version()
	if llm, _ := cmd.Flags().GetString("llm"); llm != "" {
		v.Classifier = llm
	}
	if prompt, _ := cmd.Flags().GetString("prompt"); prompt != "" {
		v.Schema = prompt
	}
	return v
}

func init() {
	for _, c := range []*cobra.Command{fetchCmd, classifyCmd, rollupCmd, priceCmd, runCmd} {
		addProjectFlags(c)
	}
	for _, c := range []*cobra.Command{fetchCmd, classifyCmd, priceCmd, runCmd} {
		addRangeFlags(c)
	}
	for _, c := range []*cobra.Command{fetchCmd, runCmd} {
		c.Flags().String("direction", "forward", "порядок обхода: forward или backward")
	}
	for _, c := range []*cobra.Command{classifyCmd, runCmd} {
		c.Flags().Bool("force", false, "переклассифицировать уже размеченные дни")
	}
	for _, c := range []*cobra.Command{rollupCmd, exportCmd} {
		c.Flags().String("llm", "", "модель классификатора (по умолчанию OPENAI_MODEL)")
		c.Flags().String("prompt", "", "версия инструкции (по умолчанию PROMPT_VERSION)")
	}
	classifyCmd.Flags().String("date", "", "классифицировать один день YYYY-MM-DD")
	runCmd.Flags().String("stages", "", "этапы через запятую (по умолчанию все)")
	runCmd.Flags().Int("parallel", 1, "сколько проектов обрабатывать одновременно")
	exportCmd.Flags().StringP("project", "p", "", "имя проекта из реестра")
	priceCmd.AddCommand(priceSearchCmd)
	exportCmd.Flags().StringP("out", "o", "", "путь xlsx (по умолчанию рядом с данными проекта)")
}
