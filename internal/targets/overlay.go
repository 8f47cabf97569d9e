package targets

// Overlay returns base with every set field of over applied. Scalars replace,
// lists replace wholesale unless they start with the inherit marker, in
// which case base's list is spliced in front. Neither argument is modified.
func Overlay(base, over Spec) Spec {
	return Spec{
		Compiler:    pick(base.Compiler, over.Compiler),
		CppCompiler: pick(base.CppCompiler, over.CppCompiler),
		Std:         pick(base.Std, over.Std),
		CppStd:      pick(base.CppStd, over.CppStd),
		Flags:       Splice(over.Flags, cloneList(base.Flags)),
		Files:       Splice(over.Files, cloneList(base.Files)),
		Libs:        Splice(over.Libs, cloneList(base.Libs)),
		Asm64bit:    pick(base.Asm64bit, over.Asm64bit),
		DefaultAsan: pick(base.DefaultAsan, over.DefaultAsan),
		Out:         pick(base.Out, over.Out),
	}
}

func pick[T any](base, over *T) *T {
	if over != nil {
		v := *over
		return &v
	}
	if base != nil {
		v := *base
		return &v
	}
	return nil
}
