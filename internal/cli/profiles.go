package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/artemshloyda/mediaopt/internal/config"
)

// newProfilesCmd создаёт команду для управления сохранёнными профилями.
func newProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Управление сохранёнными профилями настроек",
		Long: `Управление сохранёнными профилями настроек.

Профили хранятся в ~/.config/mediaopt/profiles/ (или в $MEDIAOPT_PROFILES_DIR)
и позволяют переиспользовать настройки между проектами.

Примеры:
  # Сохранить текущие настройки как профиль
  mediaopt --profile hq --widths 640,1280 --save-profile landing

  # Загрузить профиль и запустить обработку
  mediaopt --load-profile landing

  # Список профилей
  mediaopt profiles list

  # Удалить профиль
  mediaopt profiles delete landing`,
	}

	cmd.AddCommand(newProfilesListCmd())
	cmd.AddCommand(newProfilesShowCmd())
	cmd.AddCommand(newProfilesDeleteCmd())

	return cmd
}

// newProfilesListCmd создаёт команду для списка профилей.
func newProfilesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Показать список сохранённых профилей",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			profiles, err := config.ListSavedProfiles()
			if err != nil {
				return fmt.Errorf("ошибка получения списка профилей: %w", err)
			}

			fmt.Fprintf(out, "Встроенные профили: %v\n\n", config.ValidProfiles())

			if len(profiles) == 0 {
				fmt.Fprintln(out, "Сохранённые профили не найдены.")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Сохраните профиль командой:")
				fmt.Fprintln(out, "  mediaopt --widths 640,1280 --save-profile my-site")
				return nil
			}

			fmt.Fprintf(out, "📦 Сохранённые профили (%d):\n\n", len(profiles))

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ИМЯ\tКАЧЕСТВО\tШИРИНЫ\tCRF\tПУТЬ")
			fmt.Fprintln(w, "---\t--------\t------\t---\t----")

			for _, p := range profiles {
				quality, widths, crf := "-", "-", "-"
				if p.Config != nil && p.Config.Images != nil {
					if p.Config.Images.Quality > 0 {
						quality = fmt.Sprintf("%d", p.Config.Images.Quality)
					}
					if len(p.Config.Images.Widths) > 0 {
						widths = fmt.Sprintf("%v", p.Config.Images.Widths)
					}
				}
				if p.Config != nil && p.Config.Video != nil && p.Config.Video.CRF != nil {
					crf = fmt.Sprintf("%d", *p.Config.Video.CRF)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, quality, widths, crf, p.Path)
			}
			return w.Flush()
		},
	}
}

// newProfilesDeleteCmd создаёт команду для удаления профиля.
func newProfilesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [name]",
		Short: "Удалить профиль",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if err := config.DeleteSavedProfile(name); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Профиль '%s' удалён\n", name)
			return nil
		},
	}
}

// newProfilesShowCmd создаёт команду для отображения профиля.
func newProfilesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Показать содержимое профиля",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			out := cmd.OutOrStdout()

			fc, path, err := config.LoadSavedProfile(name)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "📦 Профиль: %s\n", name)
			fmt.Fprintf(out, "📁 Путь: %s\n\n", path)

			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(fc); err != nil {
				return fmt.Errorf("не удалось вывести профиль: %w", err)
			}
			return enc.Close()
		},
	}
}

// newConfigCmd создаёт команду для работы с файлом конфигурации.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Работа с файлом конфигурации",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Создать пример mediaopt.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "mediaopt.yaml"
			if len(args) == 1 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("файл %s уже существует (используйте --force)", path)
			}

			if err := os.WriteFile(path, []byte(config.GenerateExampleConfig()), 0644); err != nil {
				return fmt.Errorf("не удалось записать %s: %w", path, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✅ Создан %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Перезаписать существующий файл")

	cmd.AddCommand(initCmd)
	return cmd
}

/*
Возможные расширения:
- Команда 'profiles export' для экспорта в файл
- Команда 'config validate' для проверки файла без запуска
*/
