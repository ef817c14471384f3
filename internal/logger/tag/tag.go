package tag

import "log/slog"

func Error(err error) slog.Attr {
	if err != nil {
		return slog.String("error", err.Error())
	}
	return slog.String("error", "")
}

func Step(id string) slog.Attr {
	return slog.String("step", id)
}

func RunID(id string) slog.Attr {
	return slog.String("run_id", id)
}

func Table(name string) slog.Attr {
	return slog.String("table", name)
}

func Connector(kind string) slog.Attr {
	return slog.String("connector", kind)
}
