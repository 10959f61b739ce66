package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ivlev/photobooth/internal/analyzer"
	"github.com/ivlev/photobooth/internal/assets"
	"github.com/ivlev/photobooth/internal/compositor"
	"github.com/ivlev/photobooth/internal/config"
	"github.com/ivlev/photobooth/internal/filter"
	"github.com/ivlev/photobooth/internal/layout"
	"github.com/ivlev/photobooth/internal/objectstore"
	"github.com/ivlev/photobooth/internal/session"
	"github.com/ivlev/photobooth/internal/source"
	"github.com/ivlev/photobooth/internal/system"
)

var version = "dev"

func main() {
	configPtr := flag.String("config", "", "Путь к YAML-конфигу (переменные PHOTOBOOTH_* применяются поверх)")
	inputPtr := flag.String("input", "", "Папка или файл с кадрами, имитирующими камеру (по умолчанию: input_dir из конфига)")
	outputPtr := flag.String("output", "", "Папка для готовых коллажей")
	layoutPtr := flag.String("layout", "", "Раскладка: horizontal, vertical, strip_4 или своя из конфига")
	shotsPtr := flag.Int("shots", 0, "Количество снимков (0 - по числу слотов раскладки)")
	filterPtr := flag.String("filter", "", "Фильтр: имя пресета или строка вида \"brightness(1.08) contrast(1.04)\"")
	templatePtr := flag.String("template", "", "Шаблон рамки (например custom/gold.png), по умолчанию шаблон раскладки")
	mirrorPtr := flag.Bool("mirror", true, "Зеркалить кадр по горизонтали")
	unitPtr := flag.Duration("unit", 0, "Длительность одного шага отсчета (например 1s, 100ms)")
	qualityPtr := flag.Int("quality", 0, "Качество JPEG для снимков (1-100)")
	strictPtr := flag.Bool("strict", false, "Проверять совпадение прозрачных окон шаблона со слотами")
	statsPtr := flag.Bool("stats", false, "Показать отчет о производительности")
	listPtr := flag.Bool("list", false, "Показать раскладки, фильтры и шаблоны и выйти")
	checkPtr := flag.String("check", "", "Проверить шаблон на совпадение с раскладкой и выйти")
	addFramePtr := flag.String("add-frame", "", "Загрузить свою рамку в хранилище объектов и выйти")
	writeConfigPtr := flag.String("write-config", "", "Сохранить итоговый конфиг в YAML и выйти")
	versionPtr := flag.Bool("version", false, "Показать версию")

	flag.Parse()

	if *versionPtr {
		fmt.Printf("photobooth %s\n", version)
		return
	}

	cfg, err := config.Load(*configPtr)
	if err != nil {
		log.Fatalf("[-] Ошибка конфигурации: %v", err)
	}
	cfg.BuildVersion = version

	// Флаги, заданные явно, важнее конфига и окружения
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.InputDir = *inputPtr
		case "output":
			cfg.OutputDir = *outputPtr
		case "layout":
			cfg.Layout = *layoutPtr
		case "shots":
			cfg.Shots = *shotsPtr
		case "filter":
			cfg.Filter = *filterPtr
		case "template":
			cfg.Template = *templatePtr
		case "mirror":
			cfg.Mirror = *mirrorPtr
		case "unit":
			cfg.TimeUnit = *unitPtr
		case "quality":
			cfg.Quality = *qualityPtr
		case "strict":
			cfg.StrictTemplates = *strictPtr
		case "stats":
			cfg.ShowStats = *statsPtr
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[-] Ошибка конфигурации: %v", err)
	}

	if *writeConfigPtr != "" {
		if err := cfg.WriteFile(*writeConfigPtr); err != nil {
			log.Fatalf("[-] Не удалось сохранить конфиг: %v", err)
		}
		fmt.Printf("[+++] Конфиг сохранен: %s\n", *writeConfigPtr)
		return
	}

	// Создаем нужные директории, если их нет
	for _, d := range []string{cfg.InputDir, cfg.OutputDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			log.Printf("[!] Не удалось создать папку %s: %v", d, err)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := cfg.Registry()
	if err != nil {
		log.Fatalf("[-] Ошибка раскладок: %v", err)
	}

	// Пользовательские рамки подключаем, только если хранилище отвечает
	var store *objectstore.MinioStore
	catalogOpts := []assets.CatalogOption{assets.WithLogger(logger)}
	if cfg.ObjectStore.Enabled() {
		store, err = openStore(ctx, cfg.ObjectStore)
		if err != nil {
			log.Printf("[!] Хранилище рамок недоступно, используются только встроенные: %v", err)
		} else {
			catalogOpts = append(catalogOpts, assets.WithCustom(assets.NewStore(store)))
		}
	}
	catalog := assets.NewCatalog(assets.NewDir(cfg.TemplateDir, cfg.PDFDPI), catalogOpts...)

	switch {
	case *listPtr:
		list(ctx, registry, catalog)
		return
	case *addFramePtr != "":
		if store == nil {
			log.Fatalf("[-] Хранилище объектов не настроено (PHOTOBOOTH_S3_ENDPOINT)")
		}
		ref, err := addFrame(ctx, store, *addFramePtr)
		if err != nil {
			log.Fatalf("[-] Ошибка загрузки рамки: %v", err)
		}
		fmt.Printf("[+++] Рамка загружена: %s\n", ref)
		return
	case *checkPtr != "":
		if err := check(ctx, registry, catalog, cfg.Layout, *checkPtr, cfg.AlignTolerance); err != nil {
			log.Fatalf("[-] %v", err)
		}
		fmt.Printf("[+++] Шаблон %s совпадает с раскладкой %s\n", *checkPtr, cfg.Layout)
		return
	}

	// Инициализируем зависимости
	l, err := registry.Resolve(cfg.Layout)
	if err != nil {
		log.Fatalf("[-] Ошибка: %v. Доступные раскладки: %v", err, registry.IDs())
	}
	// Число снимков по умолчанию берем из раскладки
	shots := cfg.Shots
	if shots == 0 {
		shots = l.Shots()
	}
	flt, err := filter.Resolve(cfg.Filter)
	if err != nil {
		log.Fatalf("[-] Ошибка фильтра: %v. Пресеты: %v", err, filter.Names())
	}

	src, err := source.NewImageSource(cfg.InputDir)
	if err != nil {
		log.Fatalf("[-] Ошибка инициализации источника: %v. Положите кадры в %s", err, cfg.InputDir)
	}
	defer src.Close()
	if latest, err := system.FindLatestImage(cfg.InputDir); err == nil {
		fmt.Printf("[*] Источник: %s | Кадров: %d | Последний: %s\n", cfg.InputDir, src.Len(), filepath.Base(latest))
	}

	compOpts := []compositor.Option{}
	if cfg.StrictTemplates {
		compOpts = append(compOpts, compositor.WithAlignmentCheck(cfg.AlignTolerance))
	}
	comp := compositor.New(registry, catalog, compOpts...)

	stats := &report{}
	seq := session.New(registry, src, timedComposer{Compositor: comp, stats: stats},
		session.WithTiming(session.Timing{
			Unit:      cfg.TimeUnit,
			Countdown: cfg.Countdown,
			InterShot: cfg.InterShotDelay,
			Flash:     cfg.FlashDuration,
		}),
		session.WithLogger(logger),
		session.WithListener(stats.observe),
		session.WithListener(printEvent),
	)
	defer seq.Close()

	template := cfg.Template
	if template == "" {
		template = l.Template
	}
	fmt.Printf("[*] Раскладка: %s (%dx%d) | Снимков: %d | Шаблон: %s | Фильтр: %s\n",
		l.ID, l.CanvasWidth, l.CanvasHeight, shots, template, cfg.Filter)

	stats.start = time.Now()
	err = seq.StartSession(shots, l.ID, session.Settings{
		Mirror:           cfg.Mirror,
		Filter:           flt,
		Quality:          cfg.Quality,
		TemplateOverride: cfg.Template,
	})
	if err != nil {
		if errors.Is(err, session.ErrShotCount) {
			log.Fatalf("[-] %v. Подходящие раскладки: %v", err, registry.ForShots(shots))
		}
		log.Fatalf("[-] Ошибка запуска сессии: %v", err)
	}

	snap, err := seq.Wait(ctx)
	if err != nil {
		log.Fatalf("[-] Сессия прервана: %v", err)
	}
	if snap.Status != session.StatusReview {
		log.Fatalf("[-] Сессия завершилась ошибкой: %v", snap.Err)
	}

	// Сохраняем коллаж и сбрасываем сессию в idle
	outPath := filepath.Join(cfg.OutputDir, system.ExportName(time.Now()))
	if err := os.WriteFile(outPath, snap.Result, 0644); err != nil {
		log.Fatalf("[-] Не удалось сохранить коллаж: %v", err)
	}
	seq.Reset()

	if cfg.ShowStats {
		stats.print(cfg.BuildVersion, l.ID)
	}
	fmt.Printf("[+++] Успех! Результат: %s\n", outPath)
}

func openStore(ctx context.Context, cfg objectstore.Config) (*objectstore.MinioStore, error) {
	client, err := objectstore.NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := objectstore.EnsureBucket(ctx, client, cfg); err != nil {
		return nil, err
	}
	return objectstore.NewMinioStoreWithClient(client, cfg.Bucket, cfg.Prefix)
}

func printEvent(ev session.Event) {
	switch ev.Type {
	case session.EventCountdown:
		fmt.Printf("[*] Снимок %d/%d: %d...\n", ev.Shot, ev.ShotTarget, ev.Countdown)
	case session.EventFlash:
		if ev.Flash {
			fmt.Println("[*] Вспышка!")
		}
	case session.EventCaptured:
		fmt.Printf("[*] Снимок %d/%d готов\n", ev.Shot, ev.ShotTarget)
	case session.EventProcessing:
		fmt.Println("[*] Сборка коллажа...")
	case session.EventFailed:
		log.Printf("[!] Сессия прервана: %v", ev.Err)
	}
}

func list(ctx context.Context, registry *layout.Registry, catalog *assets.Catalog) {
	fmt.Println("[*] Раскладки:")
	for _, id := range registry.IDs() {
		l, _ := registry.Resolve(id)
		fmt.Printf("    %-12s %dx%d, снимков: %d, кадрирование: %s, шаблон: %s\n",
			l.ID, l.CanvasWidth, l.CanvasHeight, l.Shots(), l.CaptureAspect, l.Template)
	}

	fmt.Println("[*] Фильтры:")
	for _, p := range filter.Presets() {
		fmt.Printf("    %-14s %s\n", p.Name, p.Token)
	}

	fmt.Println("[*] Шаблоны:")
	entries, err := catalog.List(ctx)
	if err != nil {
		log.Printf("[!] Не удалось получить список шаблонов: %v", err)
		return
	}
	for _, e := range entries {
		fmt.Printf("    %-32s %-8s %s\n", e.Ref, e.Origin, e.Modified.Format("2006-01-02 15:04"))
	}
}

func addFrame(ctx context.Context, store *objectstore.MinioStore, path string) (string, error) {
	name := filepath.Base(path)
	if !assets.Supported(name) || filepath.Ext(name) == ".pdf" {
		return "", fmt.Errorf("неподдерживаемый формат: %s", name)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if err := store.Put(ctx, name, f, info.Size(), contentType(name)); err != nil {
		return "", err
	}
	return assets.CustomPrefix + name, nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	}
	return "image/png"
}

func check(ctx context.Context, registry *layout.Registry, catalog *assets.Catalog, layoutID, ref string, tolerance int) error {
	l, err := registry.Resolve(layoutID)
	if err != nil {
		return err
	}
	tmpl, err := catalog.LoadTemplate(ctx, ref)
	if err != nil {
		return err
	}
	b := tmpl.Bounds()
	if b.Dx() != l.CanvasWidth || b.Dy() != l.CanvasHeight {
		return fmt.Errorf("шаблон %s имеет размер %dx%d, раскладка %s ожидает %dx%d",
			ref, b.Dx(), b.Dy(), l.ID, l.CanvasWidth, l.CanvasHeight)
	}
	cutouts := analyzer.NewDetector().Detect(tmpl)
	fmt.Printf("[*] Найдено прозрачных окон: %d, слотов: %d\n", len(cutouts), l.Shots())
	for _, c := range cutouts {
		fmt.Printf("    %v (площадь %d)\n", c.Rect, c.Area)
	}
	if problems := analyzer.CheckAlignment(l, cutouts, tolerance); len(problems) > 0 {
		for _, p := range problems {
			log.Printf("[!] %s", p)
		}
		return &analyzer.AlignmentError{Layout: l.ID, Problems: problems}
	}
	return nil
}
