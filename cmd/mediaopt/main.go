// Command mediaopt оптимизирует изображения и видео статического сайта.
package main

import "github.com/artemshloyda/mediaopt/internal/cli"

func main() {
	cli.Execute()
}
